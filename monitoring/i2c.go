package monitoring

import (
	"cmp"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sarchlab/i2cmux/driver/meson"
	"github.com/sarchlab/i2cmux/ringbuf"
)

type claimRsp struct {
	Addr   string `json:"addr"`
	Client uint8  `json:"client"`
}

func (m *Monitor) listSecurity(w http.ResponseWriter, _ *http.Request) {
	rsp := []claimRsp{}

	if m.broker != nil {
		for addr, client := range m.broker.Security().Claims() {
			rsp = append(rsp, claimRsp{Addr: addr.String(), Client: uint8(client)})
		}
	}

	slices.SortFunc(rsp, func(a, b claimRsp) int { return cmp.Compare(a.Addr, b.Addr) })

	writeJSON(w, rsp)
}

type clientRsp struct {
	ID          uint8  `json:"id"`
	Channel     int    `json:"channel"`
	State       string `json:"state"`
	Outstanding int    `json:"outstanding"`
}

func (m *Monitor) listClients(w http.ResponseWriter, _ *http.Request) {
	rsp := []clientRsp{}

	if m.broker != nil {
		for _, c := range m.broker.Clients() {
			rsp = append(rsp, clientRsp{
				ID:          uint8(c.ID),
				Channel:     int(c.Channel),
				State:       c.State.String(),
				Outstanding: c.Outstanding,
			})
		}
	}

	writeJSON(w, rsp)
}

type ringRsp struct {
	Ring  string `json:"ring"`
	Level int    `json:"level"`
	Cap   int    `json:"cap"`
}

type ringQuery struct {
	sort          string
	limit, offset int
}

func parseRingQuery(q url.Values) (ringQuery, error) {
	rq := ringQuery{sort: q.Get("sort")}

	switch rq.sort {
	case "":
		rq.sort = "percent"
	case "percent", "level":
	default:
		return rq, fmt.Errorf("sort must be level or percent, not %q", rq.sort)
	}

	for name, dst := range map[string]*int{"limit": &rq.limit, "offset": &rq.offset} {
		s := q.Get(name)
		if s == "" {
			continue
		}

		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return rq, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = v
	}

	return rq, nil
}

func (m *Monitor) listRings(w http.ResponseWriter, r *http.Request) {
	q, err := parseRingQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rings := m.selectRings(q)

	rsp := make([]ringRsp, len(rings))
	for i, ring := range rings {
		rsp[i] = ringRsp{Ring: ring.Name(), Level: ring.Len(), Cap: ring.Capacity()}
	}

	writeJSON(w, rsp)
}

func fill(r *ringbuf.Ring) float64 {
	return float64(r.Len()) / float64(r.Capacity())
}

// selectRings orders the rings fullest first and returns the requested
// page. Ties on the primary key fall back to the other key, then to
// registration order. A zero limit selects every ring after offset.
func (m *Monitor) selectRings(q ringQuery) []*ringbuf.Ring {
	byLevel := func(a, b *ringbuf.Ring) int { return cmp.Compare(b.Len(), a.Len()) }
	byFill := func(a, b *ringbuf.Ring) int { return cmp.Compare(fill(b), fill(a)) }

	first, second := byFill, byLevel
	if q.sort == "level" {
		first, second = byLevel, byFill
	}

	rings := slices.Clone(m.rings)
	slices.SortStableFunc(rings, func(a, b *ringbuf.Ring) int {
		return cmp.Or(first(a, b), second(a, b))
	})

	start := min(q.offset, len(rings))
	end := len(rings)
	if q.limit > 0 {
		end = min(start+q.limit, end)
	}

	return rings[start:end]
}

func (m *Monitor) listRegisters(w http.ResponseWriter, r *http.Request) {
	name, one := mux.Vars(r)["name"]

	found := false
	for _, b := range m.banks {
		if one && b.name != name {
			continue
		}

		found = true
		fmt.Fprintf(w, "%s\n%s", b.name, meson.Dump(b.bank))
	}

	if one && !found {
		http.Error(w, "register bank not found", http.StatusNotFound)
	}
}
