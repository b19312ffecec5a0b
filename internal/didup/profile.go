package didup

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/raine/didup-famiglia/internal/didup/wire"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// profileOptions are the option keys documented for family profiles. Other
// keys the server sends end up in the "other options" maps.
var profileOptions = map[string]bool{
	"orario_scolastico":              true,
	"pagellino_online":               true,
	"abilita_preautorizzazioni_fam":  true,
	"valutazioni_periodiche":         true,
	"abilita_pcto":                   true,
	"visualizza_nota_valutazione":    true,
	"valutazioni_giornaliere":        true,
	"compiti_assegnati":              true,
	"ignora_opzione_voti_docenti":    true,
	"docenti_classe":                 true,
	"recupero_debito_sf":             true,
	"rendi_visibile_curriculum":      true,
	"richiesta_certificati":          true,
	"modifica_recapiti":              true,
	"abilita_giustific_maggiorenni":  true,
	"consiglio_di_istituto":          true,
	"note_disciplinari":              true,
	"abilita_mensa":                  true,
	"giudizi":                        true,
	"abilita_pfi":                    true,
	"mostra_media_materia":           true,
	"giustificazioni_assenze":        true,
	"tabellone_periodi_intermedi":    true,
	"pagelle_online":                 true,
	"assenze_per_data":               true,
	"valutazioni_sospese_periodiche": true,
	"argomenti_lezione":              true,
	"nascondi_didup_famiglia":        true,
	"alilita_bsmart_famiglia":        true,
	"voti_giudizi":                   true,
	"recupero_debito_int":            true,
	"abilita_autocertificazione_fam": true,
	"mostra_media_generale":          true,
	"tabellone_scrutinio_finale":     true,
	"pin_voti":                       true,
	"disabilita_accesso_famiglia":    true,
	"tasse_scolastiche":              true,
	"promemoria_classe":              true,
	"prenotazione_alunni":            true,
	"consiglio_di_classe":            true,
}

type option struct {
	Key   string `json:"chiave"`
	Value bool   `json:"valore"`
}

// splitOptions lower-cases option keys and separates known keys from the
// rest.
func splitOptions(opts []option, known func(string) bool) (map[string]bool, map[string]bool) {
	options := map[string]bool{}
	other := map[string]bool{}
	for _, opt := range opts {
		key := strings.ToLower(opt.Key)
		if known(key) {
			options[key] = opt.Value
		} else {
			other[key] = opt.Value
		}
	}
	return options, other
}

// Me is the profile selected at login: the entry of the mobile login whose
// username matches the credentials.
type Me struct {
	Username string

	token        string
	options      map[string]bool
	otherOptions map[string]bool
}

type mobileProfile struct {
	Username string   `json:"username"`
	Token    string   `json:"token"`
	Options  []option `json:"opzioni"`
}

func newMe(profiles *wire.Response, username string) (*Me, error) {
	var entry gjson.Result
	profiles.Get("data").ForEach(func(_, value gjson.Result) bool {
		if value.Get("username").String() == username {
			entry = value
			return false
		}
		return true
	})
	if !entry.Exists() {
		return nil, ErrNoProfile
	}

	var p mobileProfile
	if err := json.Unmarshal([]byte(entry.Raw), &p); err != nil {
		return nil, fmt.Errorf("invalid mobile login profile: %w", err)
	}
	if p.Token == "" {
		return nil, fmt.Errorf("%w: profile %q has no token", ErrNoProfile, username)
	}

	options, other := splitOptions(p.Options, func(key string) bool { return profileOptions[key] })
	return &Me{
		Username:     p.Username,
		token:        p.Token,
		options:      options,
		otherOptions: other,
	}, nil
}

// Token returns the mobile token sent as X-Auth-Token.
func (m *Me) Token() string {
	return m.token
}

// Options returns the documented profile options, keyed in lower case.
func (m *Me) Options() map[string]bool {
	return maps.Clone(m.options)
}

func (m *Me) OtherOptions() map[string]bool {
	return maps.Clone(m.otherOptions)
}

// Option reports the value of a profile option; unknown keys are false.
func (m *Me) Option(key string) bool {
	key = strings.ToLower(key)
	if v, ok := m.options[key]; ok {
		return v
	}
	return m.otherOptions[key]
}

type Profile struct {
	School SchoolData
	User   UserData
}

type SchoolData struct {
	PK        string
	Name      string
	YearStart time.Time
	YearEnd   time.Time
	Class     string
	Section   string
	Course    string
}

// ClassNumber returns the class as a number when the school uses numeric
// class names.
func (s SchoolData) ClassNumber() (int, bool) {
	n, err := strconv.Atoi(s.Class)
	return n, err == nil
}

type UserData struct {
	PK          string
	LastClass   bool
	FullName    string
	FirstName   string
	LastName    string
	Adult       bool
	Email       string
	Cell        string
	FiscalCode  string
	Gender      string
	BirthDate   time.Time
	BirthPlace  string
	Citizenship string
	Residence   Residence
}

type Residence struct {
	Address    string
	PostalCode string
	City       string
}

type profiloData struct {
	Anno struct {
		DataInizio string `json:"dataInizio"`
		DataFine   string `json:"dataFine"`
	} `json:"anno"`
	Scheda struct {
		PK     string `json:"pk"`
		Classe struct {
			Denominazione string `json:"desDenominazione"`
			Sezione       string `json:"desSezione"`
		} `json:"classe"`
		Corso struct {
			Descrizione string `json:"descrizione"`
		} `json:"corso"`
		Scuola struct {
			PK          string `json:"pk"`
			Descrizione string `json:"descrizione"`
		} `json:"scuola"`
	} `json:"scheda"`
	Alunno struct {
		PK             string `json:"pk"`
		IsUltimaClasse bool   `json:"isUltimaClasse"`
		Nominativo     string `json:"nominativo"`
		Nome           string `json:"nome"`
		Cognome        string `json:"cognome"`
		Maggiorenne    bool   `json:"maggiorenne"`
		Email          string `json:"desEmail"`
	} `json:"alunno"`
}

type dettaglioData struct {
	Alunno struct {
		Cellulare       string `json:"desCellulare"`
		CodiceFiscale   string `json:"desCf"`
		Sesso           string `json:"sesso"`
		DataNascita     string `json:"datNascita"`
		ComuneNascita   string `json:"desComuneNascita"`
		Cittadinanza    string `json:"cittadinanza"`
		Indirizzo       string `json:"desIndirizzoRecapito"`
		CapResidenza    string `json:"desCapResidenza"`
		ComuneResidenza string `json:"desComuneResidenza"`
	} `json:"alunno"`
}

// LoadProfile fetches the school and student details. The student's pk is
// remembered to pick the right entry of the dashboard.
func (c *Client) LoadProfile(ctx context.Context) (*Profile, error) {
	var profilo, dettaglio *wire.Response

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profilo, err = c.api.Profilo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		dettaglio, err = c.api.DettaglioProfilo(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profile, schedaPK, err := projectProfile(profilo, dettaglio)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.schedaPK = schedaPK
	c.mu.Unlock()

	return profile, nil
}

func projectProfile(profilo, dettaglio *wire.Response) (*Profile, string, error) {
	var p profiloData
	if err := unmarshalData(profilo, &p); err != nil {
		return nil, "", fmt.Errorf("invalid profile: %w", err)
	}
	var d dettaglioData
	if err := unmarshalData(dettaglio, &d); err != nil {
		return nil, "", fmt.Errorf("invalid profile details: %w", err)
	}

	yearStart, err := parseDate(p.Anno.DataInizio)
	if err != nil {
		return nil, "", err
	}
	yearEnd, err := parseDate(p.Anno.DataFine)
	if err != nil {
		return nil, "", err
	}
	birthDate, err := parseDate(d.Alunno.DataNascita)
	if err != nil {
		return nil, "", err
	}

	profile := &Profile{
		School: SchoolData{
			PK:        p.Scheda.Scuola.PK,
			Name:      p.Scheda.Scuola.Descrizione,
			YearStart: yearStart,
			YearEnd:   yearEnd,
			Class:     p.Scheda.Classe.Denominazione,
			Section:   p.Scheda.Classe.Sezione,
			Course:    p.Scheda.Corso.Descrizione,
		},
		User: UserData{
			PK:          p.Alunno.PK,
			LastClass:   p.Alunno.IsUltimaClasse,
			FullName:    p.Alunno.Nominativo,
			FirstName:   p.Alunno.Nome,
			LastName:    p.Alunno.Cognome,
			Adult:       p.Alunno.Maggiorenne,
			Email:       p.Alunno.Email,
			Cell:        d.Alunno.Cellulare,
			FiscalCode:  d.Alunno.CodiceFiscale,
			Gender:      d.Alunno.Sesso,
			BirthDate:   birthDate,
			BirthPlace:  d.Alunno.ComuneNascita,
			Citizenship: d.Alunno.Cittadinanza,
			Residence: Residence{
				Address:    d.Alunno.Indirizzo,
				PostalCode: d.Alunno.CapResidenza,
				City:       d.Alunno.ComuneResidenza,
			},
		},
	}
	return profile, p.Scheda.PK, nil
}

// unmarshalData decodes the "data" member of an envelope into v.
func unmarshalData(res *wire.Response, v any) error {
	data := res.Get("data")
	if !data.IsObject() {
		return fmt.Errorf("response has no data object")
	}
	return json.Unmarshal([]byte(data.Raw), v)
}

// parseDate parses the portal's YYYY-MM-DD dates. Empty values yield the zero
// time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) > len(dayLayout) {
		s = s[:len(dayLayout)]
	}
	t, err := time.ParseInLocation(dayLayout, s, portalLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
