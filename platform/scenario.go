package platform

import (
	"fmt"
	"strings"

	"github.com/sarchlab/i2cmux/client"
	"github.com/sarchlab/i2cmux/config"
	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/monitoring"
)

// Outcome is what one scenario step of a client produced.
type Outcome struct {
	Client string
	Step   int
	Op     config.Op

	// Dropped is set when the broker refused the request, so no result
	// came back.
	Dropped bool
	Code    i2c.ErrorCode
	Data    []byte
	Err     error
}

func (o Outcome) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s[%d] %s %s", o.Client, o.Step, o.Op.Op, o.Op.Addr)

	switch {
	case o.Dropped:
		b.WriteString(" dropped")
	case o.Err != nil:
		fmt.Fprintf(&b, " error: %v", o.Err)
	default:
		b.WriteString(" ok")
	}

	if len(o.Data) > 0 {
		fmt.Fprintf(&b, " data % x", o.Data)
	}

	return b.String()
}

// RunScenario runs the configured operations of every client. Operations
// run in rounds: in round k each client issues its k-th operation, then the
// system runs until it is idle. Requests of different clients in the same
// round share the bus.
func (p *Platform) RunScenario() ([]Outcome, error) {
	var outcomes []Outcome

	var bar *monitoring.ProgressBar
	if p.monitor != nil {
		total := 0
		for _, cc := range p.config.Clients {
			total += len(cc.Ops)
		}

		bar = p.monitor.CreateProgressBar("Scenario", uint64(total))
		defer p.monitor.CompleteProgressBar(bar)
	}

	for step := 0; ; step++ {
		type issued struct {
			outcome Outcome
			client  *client.Comp
		}

		var round []issued
		for i, cc := range p.config.Clients {
			if step >= len(cc.Ops) {
				continue
			}

			c := p.clients[i]
			o := Outcome{Client: cc.Name, Step: step, Op: cc.Ops[step]}
			o.Err = issue(c, o.Op)
			round = append(round, issued{outcome: o, client: c})
		}

		if len(round) == 0 {
			return outcomes, nil
		}

		if bar != nil {
			bar.IncrementInProgress(uint64(len(round)))
		}

		if err := p.Run(); err != nil {
			return outcomes, err
		}

		for _, r := range round {
			o := r.outcome
			if o.Err == nil && isTransfer(o.Op) {
				collect(r.client, &o)
			}

			outcomes = append(outcomes, o)
		}

		// The system is idle, so nothing still outstanding will be answered.
		for _, r := range round {
			r.client.Expire()
		}

		if bar != nil {
			bar.MoveInProgressToFinished(uint64(len(round)))
		}
	}
}

func isTransfer(op config.Op) bool {
	return op.Op != config.OpClaim && op.Op != config.OpRelease
}

func issue(c *client.Comp, op config.Op) error {
	switch op.Op {
	case config.OpClaim:
		return c.Claim(op.Addr)
	case config.OpRelease:
		return c.Release(op.Addr)
	case config.OpWrite:
		return c.Write(op.Addr, op.Data)
	case config.OpRead:
		return c.Read(op.Addr, op.Len)
	case config.OpWriteRead:
		return c.WriteRead(op.Addr, op.Data, op.Len)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

func collect(c *client.Comp, o *Outcome) {
	res, ok := c.PopResult()
	if !ok {
		o.Dropped = true
		return
	}

	o.Code = res.Code
	o.Data = res.Data
	o.Err = res.Err
}
