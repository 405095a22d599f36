package views

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/giygas/prescriptions-web/entities"
)

// UnknownLabel is shown for ids missing from the lookup maps
const UnknownLabel = "Inconnu"

// displayDateLayout is the fr-FR short date
const displayDateLayout = "02/01/2006"

// StatusBadge is the human label and visual treatment of a prescription status
type StatusBadge struct {
	Label string
	Class string
	Color string
}

var statusBadges = map[entities.PrescriptionStatus]StatusBadge{
	entities.StatusValid:   {Label: "Valide", Class: "status-valide", Color: "#10b981"},
	entities.StatusPending: {Label: "En attente", Class: "status-en-attente", Color: "#f59e0b"},
	entities.StatusDeleted: {Label: "Supprimée", Class: "status-suppr", Color: "#ef4444"},
}

// BadgeFor returns the badge of status; unknown statuses keep their raw value
func BadgeFor(status entities.PrescriptionStatus) StatusBadge {
	if b, ok := statusBadges[status]; ok {
		return b
	}
	return StatusBadge{Label: string(status), Class: "status-unknown", Color: "#6b7280"}
}

// FormatDate renders an API date as dd/mm/yyyy, or returns it unchanged when it does not parse
func FormatDate(s string) string {
	t, err := entities.ParseDate(s)
	if err != nil {
		return s
	}
	return t.Format(displayDateLayout)
}

// Option is a <select> entry
type Option struct {
	Value int
	Label string
}

// patientOptions sorts patients by display name using French collation
func patientOptions(patients []entities.Patient) []Option {
	out := make([]Option, 0, len(patients))
	for _, p := range patients {
		out = append(out, Option{Value: p.ID, Label: p.FullName()})
	}
	sortOptions(out)
	return out
}

func medicationOptions(medications []entities.Medication) []Option {
	out := make([]Option, 0, len(medications))
	for _, m := range medications {
		out = append(out, Option{Value: m.ID, Label: m.Label})
	}
	sortOptions(out)
	return out
}

// sortOptions orders by label the way a French reader expects ("Émile" next to "Emma").
// A collator is not safe for concurrent use, so one is built per call.
func sortOptions(opts []Option) {
	c := collate.New(language.French, collate.IgnoreCase, collate.Loose)
	sort.SliceStable(opts, func(i, j int) bool {
		if cmp := c.CompareString(opts[i].Label, opts[j].Label); cmp != 0 {
			return cmp < 0
		}
		return opts[i].Value < opts[j].Value
	})
}

// fold lowercases s and strips diacritics for accent-insensitive matching
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// matchesQuery reports whether any field contains query, ignoring case and accents
func matchesQuery(query string, fields ...string) bool {
	q := fold(query)
	if q == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(fold(f), q) {
			return true
		}
	}
	return false
}

// StatusOption is a status <select> entry
type StatusOption struct {
	Value entities.PrescriptionStatus
	Label string
}

// StatusOptions lists the known statuses with their labels, in display order
func StatusOptions() []StatusOption {
	out := make([]StatusOption, 0, len(entities.PrescriptionStatuses))
	for _, s := range entities.PrescriptionStatuses {
		out = append(out, StatusOption{Value: s, Label: BadgeFor(s).Label})
	}
	return out
}
