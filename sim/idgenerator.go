package sim

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator hands out task and event ids.
type IDGenerator interface {
	Generate() string
}

// sequential ids make repeated runs produce identical traces.
type sequentialIDs struct {
	last atomic.Uint64
}

func (g *sequentialIDs) Generate() string {
	return strconv.FormatUint(g.last.Add(1), 10)
}

// unique ids stay distinct across runs sharing one trace database.
type uniqueIDs struct{}

func (uniqueIDs) Generate() string {
	return xid.New().String()
}

var ids struct {
	sync.Mutex
	gen IDGenerator
}

// UseSequentialIDGenerator selects ids 1, 2, 3 and so on. It is the default.
func UseSequentialIDGenerator() {
	setIDGenerator(&sequentialIDs{})
}

// UseParallelIDGenerator selects globally unique ids. It must be called
// before the first id is generated.
func UseParallelIDGenerator() {
	setIDGenerator(uniqueIDs{})
}

func setIDGenerator(g IDGenerator) {
	ids.Lock()
	defer ids.Unlock()

	if ids.gen != nil {
		log.Panic("the id generator is already in use")
	}

	ids.gen = g
}

// GetIDGenerator returns the process wide generator, choosing the sequential
// one if none was selected.
func GetIDGenerator() IDGenerator {
	ids.Lock()
	defer ids.Unlock()

	if ids.gen == nil {
		ids.gen = &sequentialIDs{}
	}

	return ids.gen
}
