package catalog

import (
	"strings"

	"github.com/hurttlocker/intake/internal/normalization"
)

// DefaultDetailKeywords signal that the user wants the details of a job.
var DefaultDetailKeywords = []string{
	"salario", "sueldo", "horario", "responsabilidad", "responsabilidades",
	"requisito", "requisitos", "prestacion", "prestaciones",
	"actividad", "actividades", "qué hace", "funciones", "ubicación",
	"ubicacion", "vacante", "puesto", "trabajo", "paga", "pagan",
	"cuanto", "cuánto", "comision", "comisiones", "commission",
	"beneficio", "beneficios", "detalles", "informacion", "información",
}

// HistoryWindow is how many recent turns are searched for an earlier mention.
const HistoryWindow = 3

// Exchange is the text of one prior turn.
type Exchange struct {
	User      string
	Assistant string
}

// Detection is the result of scanning a conversation for a catalog entry.
type Detection struct {
	// Title is the detected entry title; empty when nothing matched.
	Title string
	// WantsDetails is set when the current message asks about job details.
	WantsDetails bool
	// FromHistory is set when Title came from a prior turn.
	FromHistory bool
}

// Detected reports whether an entry was found.
func (d Detection) Detected() bool { return d.Title != "" }

// Detector finds catalog entries mentioned in a conversation.
type Detector struct {
	catalog        *Catalog
	detailKeywords []string
}

// NewDetector creates a detector over c. Nil keywords use DefaultDetailKeywords.
func NewDetector(c *Catalog, detailKeywords []string) *Detector {
	if detailKeywords == nil {
		detailKeywords = DefaultDetailKeywords
	}
	folded := make([]string, len(detailKeywords))
	for i, k := range detailKeywords {
		folded[i] = normalization.Fold(k)
	}
	return &Detector{catalog: c, detailKeywords: folded}
}

// Detect scans the current message first; only when it names no entry and
// asks for details are the last HistoryWindow exchanges searched, newest first.
func (d *Detector) Detect(message string, history []Exchange) Detection {
	snap := d.catalog.Snapshot()
	msg := normalization.Fold(message)

	det := Detection{WantsDetails: d.wantsDetails(msg)}
	if title, ok := snap.longestIn(msg); ok {
		det.Title = title
		return det
	}
	if !det.WantsDetails {
		return det
	}

	start := len(history) - HistoryWindow
	if start < 0 {
		start = 0
	}
	for i := len(history) - 1; i >= start; i-- {
		text := normalization.Fold(history[i].User + " " + history[i].Assistant)
		if title, ok := snap.longestIn(text); ok {
			det.Title = title
			det.FromHistory = true
			return det
		}
	}
	return det
}

func (d *Detector) wantsDetails(folded string) bool {
	for _, k := range d.detailKeywords {
		if k != "" && strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// longestIn returns the longest entry whose folded title occurs in folded
// text. Equal lengths keep the earlier entry.
func (s *Snapshot) longestIn(folded string) (string, bool) {
	best, bestLen := -1, 0
	for i, t := range s.folded {
		if t == "" || len(t) <= bestLen {
			continue
		}
		if strings.Contains(folded, t) {
			best, bestLen = i, len(t)
		}
	}
	if best < 0 {
		return "", false
	}
	return s.entries[best].Title, true
}
