package didup

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/raine/didup-famiglia/internal/didup/wire"
)

const (
	dashboardTimeLayout = "2006-01-02 15:04:05.000000"
	dayLayout           = "2006-01-02"
)

// portalLocation is the portal's time zone, used for request timestamps.
var portalLocation = loadLocation("Europe/Rome")

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// Endpoints exposes the portal's REST endpoints over an authenticated Client.
type Endpoints struct {
	client *Client
}

func (e *Endpoints) post(ctx context.Context, path string, body any) (*wire.Response, error) {
	if body == nil {
		body = map[string]any{}
	}
	return e.client.Request(ctx, http.MethodPost, path, WithJSON(body))
}

func (e *Endpoints) Profilo(ctx context.Context) (*wire.Response, error) {
	return e.client.Request(ctx, http.MethodGet, "profilo")
}

func (e *Endpoints) DettaglioProfilo(ctx context.Context) (*wire.Response, error) {
	return e.post(ctx, "dettaglioprofilo", nil)
}

func (e *Endpoints) Dashboard(ctx context.Context) (*wire.Response, error) {
	now := e.client.now().In(portalLocation)
	return e.post(ctx, "dashboard/dashboard", map[string]any{
		"dataultimoaggiornamento": now.Format(dashboardTimeLayout),
	})
}

func (e *Endpoints) PresaVisioneAdesione(ctx context.Context, pk string, seen bool) (*wire.Response, error) {
	flag := "N"
	if seen {
		flag = "S"
	}
	return e.post(ctx, "presavisioneadesione", map[string]any{
		"prgMessaggio": pk,
		"presaVisione": flag,
	})
}

func (e *Endpoints) DownloadAllegatoBacheca(ctx context.Context, uid string) (*wire.Response, error) {
	return e.post(ctx, "downloadallegatobacheca", map[string]any{"uid": uid})
}

func (e *Endpoints) VotiScrutinio(ctx context.Context) (*wire.Response, error) {
	return e.post(ctx, "votiscrutinio", nil)
}

func (e *Endpoints) OrarioGiorno(ctx context.Context, day time.Time) (*wire.Response, error) {
	return e.post(ctx, "orario-giorno", map[string]any{"datGiorno": day.Format(dayLayout)})
}

func (e *Endpoints) Colloqui(ctx context.Context) (*wire.Response, error) {
	return e.post(ctx, "ricevimento", nil)
}

func (e *Endpoints) Pagamenti(ctx context.Context, pkScheda string) (*wire.Response, error) {
	return e.post(ctx, "pagamenti", map[string]any{"pkScheda": pkScheda})
}

func (e *Endpoints) Curriculum(ctx context.Context) (*wire.Response, error) {
	return e.post(ctx, "curriculumalunno", nil)
}

func (e *Endpoints) StoricoBacheca(ctx context.Context, pkScheda string) (*wire.Response, error) {
	return e.post(ctx, "storicobacheca", map[string]any{"pkScheda": pkScheda})
}

func (e *Endpoints) StoricoBachecaAlunno(ctx context.Context, pkScheda string) (*wire.Response, error) {
	return e.post(ctx, "storicobachecaalunno", map[string]any{"pkScheda": pkScheda})
}
