package sim

// HookPos names a point where a domain lets observers in, such as a doorbell
// being rung or a ring being updated.
type HookPos struct {
	Name string
}

func (p *HookPos) String() string {
	if p == nil {
		return "<nil>"
	}

	return p.Name
}

// HookCtx describes one invocation. Domain is the component that fired it.
// Item is the subject (an event, a task, a signal) and Detail carries
// anything position specific.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   any
	Detail any
}

// Hookable is implemented by everything that can be observed.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
}

// Engine hook positions.
var (
	HookPosBeforeEvent = &HookPos{Name: "BeforeEvent"}
	HookPosAfterEvent  = &HookPos{Name: "AfterEvent"}
)

// Hook observes a Hookable.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc lets a plain function act as a Hook.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase is embedded by components to store and fire hooks.
type HookableBase struct {
	hooks []Hook
}

// NewHookableBase returns an empty HookableBase.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// AcceptHook appends a hook. Hooks fire in the order they were accepted.
func (h *HookableBase) AcceptHook(hook Hook) {
	if hook == nil {
		return
	}

	h.hooks = append(h.hooks, hook)
}

// NumHooks reports how many hooks are attached.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// InvokeHook runs every attached hook with ctx.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}
