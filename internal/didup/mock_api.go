package didup

import (
	"context"
	"sync"
	"time"

	"github.com/raine/didup-famiglia/internal/didup/wire"
)

// MockAPI is a test double for API.
// Each method can be overridden with a custom function.
// If not overridden, methods return an empty successful envelope.
// Thread-safe for use in concurrent tests.
type MockAPI struct {
	ProfiloFunc                 func(ctx context.Context) (*wire.Response, error)
	DettaglioProfiloFunc        func(ctx context.Context) (*wire.Response, error)
	DashboardFunc               func(ctx context.Context) (*wire.Response, error)
	PresaVisioneAdesioneFunc    func(ctx context.Context, pk string, seen bool) (*wire.Response, error)
	DownloadAllegatoBachecaFunc func(ctx context.Context, uid string) (*wire.Response, error)
	VotiScrutinioFunc           func(ctx context.Context) (*wire.Response, error)
	OrarioGiornoFunc            func(ctx context.Context, day time.Time) (*wire.Response, error)
	ColloquiFunc                func(ctx context.Context) (*wire.Response, error)
	PagamentiFunc               func(ctx context.Context, pkScheda string) (*wire.Response, error)
	CurriculumFunc              func(ctx context.Context) (*wire.Response, error)
	StoricoBachecaFunc          func(ctx context.Context, pkScheda string) (*wire.Response, error)
	StoricoBachecaAlunnoFunc    func(ctx context.Context, pkScheda string) (*wire.Response, error)

	mu sync.Mutex

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

// Ensure MockAPI implements API
var _ API = (*MockAPI)(nil)

// CallCount returns how many times method was invoked.
func (m *MockAPI) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, call := range m.Calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

func emptyEnvelope() *wire.Response {
	res, _ := wire.NewJSON(200, []byte(`{"success":true,"data":{}}`))
	return res
}

func (m *MockAPI) Profilo(ctx context.Context) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Profilo"})
	fn := m.ProfiloFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) DettaglioProfilo(ctx context.Context) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "DettaglioProfilo"})
	fn := m.DettaglioProfiloFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) Dashboard(ctx context.Context) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Dashboard"})
	fn := m.DashboardFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) PresaVisioneAdesione(ctx context.Context, pk string, seen bool) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "PresaVisioneAdesione", Args: []any{pk, seen}})
	fn := m.PresaVisioneAdesioneFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pk, seen)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) DownloadAllegatoBacheca(ctx context.Context, uid string) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "DownloadAllegatoBacheca", Args: []any{uid}})
	fn := m.DownloadAllegatoBachecaFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, uid)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) VotiScrutinio(ctx context.Context) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "VotiScrutinio"})
	fn := m.VotiScrutinioFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) OrarioGiorno(ctx context.Context, day time.Time) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "OrarioGiorno", Args: []any{day}})
	fn := m.OrarioGiornoFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, day)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) Colloqui(ctx context.Context) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Colloqui"})
	fn := m.ColloquiFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) Pagamenti(ctx context.Context, pkScheda string) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Pagamenti", Args: []any{pkScheda}})
	fn := m.PagamentiFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pkScheda)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) Curriculum(ctx context.Context) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Curriculum"})
	fn := m.CurriculumFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) StoricoBacheca(ctx context.Context, pkScheda string) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "StoricoBacheca", Args: []any{pkScheda}})
	fn := m.StoricoBachecaFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pkScheda)
	}
	return emptyEnvelope(), nil
}

func (m *MockAPI) StoricoBachecaAlunno(ctx context.Context, pkScheda string) (*wire.Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "StoricoBachecaAlunno", Args: []any{pkScheda}})
	fn := m.StoricoBachecaAlunnoFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pkScheda)
	}
	return emptyEnvelope(), nil
}
