package firestore

import (
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"
)

// cityDoc is the stored shape of a generation. Field names are shared with
// the web client that reads the same collection.
type cityDoc struct {
	Comune         comuneDoc   `firestore:"comune"`
	Weather        *weatherDoc `firestore:"weather"`
	Sources        []sourceDoc `firestore:"sources"`
	Descrizione    string      `firestore:"descrizione"`
	Aneddoto       string      `firestore:"aneddotoApprofondito"`
	GenerationType string      `firestore:"generationType,omitempty"`
	Timestamp      time.Time   `firestore:"timestamp,serverTimestamp"`
}

type comuneDoc struct {
	Nome      string `firestore:"nome"`
	Provincia string `firestore:"provincia"`
	Sigla     string `firestore:"sigla"`
}

type weatherDoc struct {
	Temperatura float64 `firestore:"temperatura"`
	StatoCielo  string  `firestore:"statoCielo"`
}

type sourceDoc struct {
	URI   string `firestore:"uri"`
	Title string `firestore:"title"`
}

func toDoc(r domain.Record) cityDoc {
	d := cityDoc{
		Comune: comuneDoc{
			Nome:      r.Comune.Name,
			Provincia: string(r.Comune.Province),
			Sigla:     r.Comune.Code,
		},
		Sources:        make([]sourceDoc, 0, len(r.Sources)),
		Descrizione:    r.Teaser,
		Aneddoto:       r.Trivia,
		GenerationType: string(r.Kind),
	}
	if r.Weather != nil {
		d.Weather = &weatherDoc{Temperatura: r.Weather.Temperature, StatoCielo: r.Weather.Sky}
	}
	for _, s := range domain.DedupeSources(r.Sources) {
		d.Sources = append(d.Sources, sourceDoc(s))
	}
	return d
}

func fromDoc(id string, d cityDoc) domain.Record {
	r := domain.Record{
		ID: id,
		Comune: domain.Comune{
			Name:     d.Comune.Nome,
			Province: domain.Province(d.Comune.Provincia),
			Code:     d.Comune.Sigla,
		},
		Teaser: d.Descrizione,
		Trivia: d.Aneddoto,
		Kind:   domain.GenerationKind(d.GenerationType),
	}
	if d.Weather != nil {
		r.Weather = &domain.Weather{Temperature: d.Weather.Temperatura, Sky: d.Weather.StatoCielo}
	}
	if d.Sources != nil {
		r.Sources = make([]domain.Source, 0, len(d.Sources))
		for _, s := range d.Sources {
			r.Sources = append(r.Sources, domain.Source(s))
		}
	}
	if !d.Timestamp.IsZero() {
		r.Timestamp = domain.FormatTimestamp(d.Timestamp)
	}
	return domain.NormalizeRecord(r)
}
