package host

import "sync"

// StaticSource serves a fixed instance list. Meant for the simulator and
// tests; a real host enumerates live sessions instead.
type StaticSource struct {
	mu   sync.RWMutex
	list []Instance
}

func NewStaticSource(list ...Instance) *StaticSource {
	return &StaticSource{list: append([]Instance(nil), list...)}
}

func (s *StaticSource) Instances() ([]Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Instance(nil), s.list...), nil
}

func (s *StaticSource) Add(in Instance) {
	if in == nil {
		return
	}
	s.mu.Lock()
	s.list = append(s.list, in)
	s.mu.Unlock()
}

// Multi combines several instance sources into one enumeration.
// The first enumeration error aborts the combined call.
func Multi(srcs ...InstanceSource) InstanceSource { return multiSource(srcs) }

type multiSource []InstanceSource

func (m multiSource) Instances() ([]Instance, error) {
	var out []Instance
	for _, s := range m {
		if s == nil {
			continue
		}
		list, err := s.Instances()
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}
