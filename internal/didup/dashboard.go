package didup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/raine/didup-famiglia/internal/didup/wire"
	"github.com/tidwall/gjson"
)

// dashboardOptions extend the profile options with keys only the dashboard
// reports.
var dashboardOptions = map[string]bool{
	"invalsi": true,
	"pfi":     true,
	"asl":     true,
	"wsm":     true,
}

type Dashboard struct {
	PK              string
	Subjects        []Subject
	Periods         []Period
	Options         map[string]bool
	OtherOptions    map[string]bool
	GeneralAverage  float64
	MonthlyAverages []float64
	Inbox           []*InboxItem
}

type Subject struct {
	PK                   string
	Name                 string
	Shortcut             string
	Code                 string
	Scrutinizable        bool
	CountsTowardsAverage bool
}

type Period struct {
	PK        string
	Code      string
	Name      string
	Start     time.Time
	End       time.Time
	OneGrade  bool
	Average   float64
	IsAverage bool
	IsFinal   bool
}

type dashboardEntry struct {
	PK      string `json:"pk"`
	Materie []struct {
		PK            string `json:"pk"`
		Abbreviazione string `json:"abbreviazione"`
		Scrut         bool   `json:"scrut"`
		CodTipo       string `json:"codTipo"`
		FaMedia       bool   `json:"faMedia"`
		Materia       string `json:"materia"`
	} `json:"listaMaterie"`
	Opzioni []option `json:"opzioni"`
	Periodi []struct {
		PK                string  `json:"pkPeriodo"`
		DataInizio        string  `json:"dataInizio"`
		DataFine          string  `json:"dataFine"`
		Descrizione       string  `json:"descrizione"`
		VotoUnico         bool    `json:"votoUnico"`
		MediaScrutinio    float64 `json:"mediaScrutinio"`
		IsMediaScrutinio  bool    `json:"isMediaScrutinio"`
		CodPeriodo        string  `json:"codPeriodo"`
		IsScrutinioFinale bool    `json:"isScrutinioFinale"`
	} `json:"listaPeriodi"`
	Bacheca       []bachecaEntry `json:"bacheca"`
	MediaGenerale float64        `json:"mediaGenerale"`
}

type bachecaEntry struct {
	PK                        string `json:"pk"`
	Messaggio                 string `json:"messaggio"`
	Data                      string `json:"data"`
	Categoria                 string `json:"categoria"`
	Autore                    string `json:"autore"`
	DataConfermaPresaVisione  string `json:"dataConfermaPresaVisione"`
	DataScadenza              string `json:"dataScadenza"`
	IsPresaVisione            bool   `json:"isPresaVisione"`
	IsPresaAdesioneConfermata bool   `json:"isPresaAdesioneConfermata"`
	Allegati                  []struct {
		PK              string `json:"pk"`
		NomeFile        string `json:"nomeFile"`
		DescrizioneFile string `json:"descrizioneFile"`
		Path            string `json:"path"`
		URL             string `json:"url"`
	} `json:"listaAllegati"`
}

// LoadDashboard fetches the dashboard of the logged-in student. Call
// LoadProfile first on accounts with several students, otherwise the first
// entry is used.
func (c *Client) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	res, err := c.api.Dashboard(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	schedaPK := c.schedaPK
	c.mu.Unlock()

	return projectDashboard(res, schedaPK, c.api, c.download)
}

type fetchFunc func(ctx context.Context, rawURL string, w io.Writer) error

func projectDashboard(res *wire.Response, schedaPK string, api API, fetch fetchFunc) (*Dashboard, error) {
	dati := res.Get("data.dati")
	if !dati.IsArray() || len(dati.Array()) == 0 {
		return nil, fmt.Errorf("dashboard has no data")
	}

	selected := dati.Array()[0]
	for _, entry := range dati.Array() {
		if schedaPK != "" && entry.Get("pk").String() == schedaPK {
			selected = entry
			break
		}
	}

	var entry dashboardEntry
	if err := json.Unmarshal([]byte(selected.Raw), &entry); err != nil {
		return nil, fmt.Errorf("invalid dashboard: %w", err)
	}

	d := &Dashboard{
		PK:             entry.PK,
		GeneralAverage: entry.MediaGenerale,
	}

	for _, m := range entry.Materie {
		d.Subjects = append(d.Subjects, Subject{
			PK:                   m.PK,
			Name:                 m.Materia,
			Shortcut:             m.Abbreviazione,
			Code:                 m.CodTipo,
			Scrutinizable:        m.Scrut,
			CountsTowardsAverage: m.FaMedia,
		})
	}

	d.Options, d.OtherOptions = splitOptions(entry.Opzioni, func(key string) bool {
		return profileOptions[key] || dashboardOptions[key]
	})

	for _, p := range entry.Periodi {
		start, err := parseDate(p.DataInizio)
		if err != nil {
			return nil, err
		}
		end, err := parseDate(p.DataFine)
		if err != nil {
			return nil, err
		}
		d.Periods = append(d.Periods, Period{
			PK:        p.PK,
			Code:      p.CodPeriodo,
			Name:      p.Descrizione,
			Start:     start,
			End:       end,
			OneGrade:  p.VotoUnico,
			Average:   p.MediaScrutinio,
			IsAverage: p.IsMediaScrutinio,
			IsFinal:   p.IsScrutinioFinale,
		})
	}

	// Month order is the server's; decoding into a map would lose it.
	selected.Get("mediaPerMese").ForEach(func(_, value gjson.Result) bool {
		d.MonthlyAverages = append(d.MonthlyAverages, value.Float())
		return true
	})

	for _, b := range entry.Bacheca {
		item, err := newInboxItem(b, api, fetch)
		if err != nil {
			return nil, err
		}
		d.Inbox = append(d.Inbox, item)
	}

	return d, nil
}

// InboxItem is a bulletin board message.
type InboxItem struct {
	PK          string
	Message     string
	Category    string
	Author      string
	Date        time.Time
	ViewedAt    time.Time
	ExpiresAt   time.Time
	Confirmed   bool
	Attachments []*Attachment

	api API

	mu     sync.Mutex
	viewed bool
}

func newInboxItem(b bachecaEntry, api API, fetch fetchFunc) (*InboxItem, error) {
	date, err := parseDate(b.Data)
	if err != nil {
		return nil, err
	}
	viewedAt, err := parseDate(b.DataConfermaPresaVisione)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseDate(b.DataScadenza)
	if err != nil {
		return nil, err
	}

	item := &InboxItem{
		PK:        b.PK,
		Message:   b.Messaggio,
		Category:  b.Categoria,
		Author:    b.Autore,
		Date:      date,
		ViewedAt:  viewedAt,
		ExpiresAt: expiresAt,
		Confirmed: b.IsPresaAdesioneConfermata,
		api:       api,
		viewed:    b.IsPresaVisione,
	}
	for _, a := range b.Allegati {
		item.Attachments = append(item.Attachments, &Attachment{
			PK:          a.PK,
			Filename:    a.NomeFile,
			Description: a.DescrizioneFile,
			Path:        a.Path,
			URL:         a.URL,
			api:         api,
			fetch:       fetch,
		})
	}
	return item, nil
}

func (i *InboxItem) Viewed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.viewed
}

// MarkAsViewed confirms the message as read. Already viewed messages are left
// alone and a nil response is returned.
func (i *InboxItem) MarkAsViewed(ctx context.Context) (*wire.Response, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.viewed {
		return nil, nil
	}
	res, err := i.api.PresaVisioneAdesione(ctx, i.PK, true)
	if err != nil {
		return nil, err
	}
	i.viewed = true
	return res, nil
}

// Attachment is a file attached to a bulletin board message.
type Attachment struct {
	PK          string
	Filename    string
	Description string
	Path        string
	URL         string

	api   API
	fetch fetchFunc
}

// DownloadURL asks the portal for a short-lived download URL.
func (a *Attachment) DownloadURL(ctx context.Context) (string, error) {
	res, err := a.api.DownloadAllegatoBacheca(ctx, a.PK)
	if err != nil {
		return "", err
	}
	url := res.Get("url").String()
	if url == "" {
		return "", fmt.Errorf("no download url for attachment %s", a.PK)
	}
	return url, nil
}

// Download writes the attachment's content to w.
func (a *Attachment) Download(ctx context.Context, w io.Writer) error {
	if w == nil {
		return ErrInvalidWriter
	}

	url, err := a.DownloadURL(ctx)
	if err != nil {
		return err
	}
	return a.fetch(ctx, url, w)
}

// DownloadFile saves the attachment to path. A partially written file is
// removed on failure.
func (a *Attachment) DownloadFile(ctx context.Context, path string) (err error) {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidWriter)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
		if err != nil {
			os.Remove(path)
		}
	}()

	return a.Download(ctx, f)
}
