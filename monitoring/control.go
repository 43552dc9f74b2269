package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/syifan/goseth"

	"github.com/sarchlab/i2cmux/sim"
)

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"now":%.10f}`, m.engine.CurrentTime())
}

// run drains the engine in the background, for events queued while the
// engine was paused from the dashboard.
func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	go func() {
		if err := m.engine.Run(); err != nil {
			log.Printf("monitor: run: %v", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, len(m.components))
	for i, c := range m.components {
		names[i] = c.Name()
	}

	writeJSON(w, names)
}

func (m *Monitor) component(name string) sim.Named {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// serializeComponent writes one level of the component's fields, starting
// at path when it is not empty.
func serializeComponent(
	w http.ResponseWriter,
	c sim.Named,
	path []string,
) {
	s := goseth.NewSerializer()
	s.SetRoot(c)
	s.SetMaxDepth(1)

	if len(path) > 0 {
		if err := s.SetEntryPoint(path); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	dieOnErr(s.Serialize(w))
}

func (m *Monitor) componentDetails(w http.ResponseWriter, r *http.Request) {
	c := m.component(mux.Vars(r)["name"])
	if c == nil {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	serializeComponent(w, c, nil)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	var req fieldReq
	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c := m.component(req.CompName)
	if c == nil {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	serializeComponent(w, c, strings.Split(req.FieldName, "."))
}
