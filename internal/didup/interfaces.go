package didup

import (
	"context"
	"time"

	"github.com/raine/didup-famiglia/internal/didup/wire"
)

// API abstracts the portal endpoints used by the profile and dashboard
// projections. This interface allows for easy mocking in tests.
type API interface {
	// Profilo returns the school year, class and student summary.
	Profilo(ctx context.Context) (*wire.Response, error)

	// DettaglioProfilo returns the student's personal details.
	DettaglioProfilo(ctx context.Context) (*wire.Response, error)

	// Dashboard returns subjects, periods, averages and the bulletin board.
	Dashboard(ctx context.Context) (*wire.Response, error)

	// PresaVisioneAdesione marks a bulletin board message as seen or unseen.
	PresaVisioneAdesione(ctx context.Context, pk string, seen bool) (*wire.Response, error)

	// DownloadAllegatoBacheca resolves the download URL of an attachment.
	DownloadAllegatoBacheca(ctx context.Context, uid string) (*wire.Response, error)

	VotiScrutinio(ctx context.Context) (*wire.Response, error)

	// OrarioGiorno returns the timetable of one day.
	OrarioGiorno(ctx context.Context, day time.Time) (*wire.Response, error)

	// Colloqui returns the parent meeting slots.
	Colloqui(ctx context.Context) (*wire.Response, error)

	Pagamenti(ctx context.Context, pkScheda string) (*wire.Response, error)

	Curriculum(ctx context.Context) (*wire.Response, error)

	// StoricoBacheca returns the class bulletin board history.
	StoricoBacheca(ctx context.Context, pkScheda string) (*wire.Response, error)

	// StoricoBachecaAlunno returns the student's bulletin board history.
	StoricoBachecaAlunno(ctx context.Context, pkScheda string) (*wire.Response, error)
}

// Ensure Endpoints implements API
var _ API = (*Endpoints)(nil)
