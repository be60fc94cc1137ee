package classifier

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/file-classifier/internal/domain"
	"github.com/fairyhunter13/file-classifier/pkg/textx"
)

// defaultKeywords maps each category to the phrases that signal it. The sets
// can be replaced wholesale from a YAML file (KEYWORDS_FILE).
var defaultKeywords = map[string][]string{
	domain.LabelDriversLicense: {
		"driver", "license", "licence", "dmv", "class", "endorsements",
		"date of birth", "expiration date", "issued", "organ donor",
	},
	domain.LabelBankStatement: {
		"account number", "statement period", "opening balance",
		"closing balance", "deposit", "withdrawal", "transaction",
		"available balance", "iban", "sort code",
	},
	domain.LabelInvoice: {
		"invoice", "invoice number", "bill to", "due date", "subtotal",
		"total due", "payment terms", "purchase order", "quantity", "unit price",
	},
	domain.LabelTaxReturn: {
		"tax", "irs", "form 1040", "taxable income", "filing status",
		"deduction", "adjusted gross income", "refund", "withholding", "tax year",
	},
	domain.LabelMedicalRecord: {
		"patient", "diagnosis", "physician", "prescription", "medical history",
		"treatment", "allergies", "blood pressure", "date of visit", "referral",
	},
	domain.LabelInsuranceClaim: {
		"policy number", "claim", "claim number", "insured", "adjuster",
		"coverage", "deductible", "date of loss", "claimant", "premium",
	},
}

// keywordFile is the YAML shape of a keyword override file.
type keywordFile struct {
	Categories map[string][]string `yaml:"categories"`
}

// LoadKeywords returns the keyword sets, optionally replaced from path.
// Unknown categories in the file are rejected.
func LoadKeywords(path string) (map[string][]string, error) {
	if path == "" {
		return defaultKeywords, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=classifier.LoadKeywords: %w", err)
	}
	var kf keywordFile
	if err := yaml.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("op=classifier.LoadKeywords: %w", err)
	}
	if len(kf.Categories) == 0 {
		return nil, fmt.Errorf("op=classifier.LoadKeywords: no categories in %s", path)
	}
	for cat := range kf.Categories {
		if _, ok := defaultKeywords[cat]; !ok {
			return nil, fmt.Errorf("op=classifier.LoadKeywords: unknown category %q", cat)
		}
	}
	merged := make(map[string][]string, len(defaultKeywords))
	for cat, kws := range defaultKeywords {
		merged[cat] = kws
	}
	for cat, kws := range kf.Categories {
		merged[cat] = kws
	}
	return merged, nil
}

// ComputeStats derives the per-category keyword triplet from text:
// total occurrences, unique matched keywords, and occurrence density.
func ComputeStats(keywords map[string][]string, text string) map[string]domain.KeywordStats {
	words := textx.WordCount(text)
	if words < 1 {
		words = 1
	}
	stats := make(map[string]domain.KeywordStats, len(keywords))
	for cat, kws := range keywords {
		var count, unique int
		for _, kw := range kws {
			n := textx.CountOccurrences(text, kw)
			count += n
			if n > 0 {
				unique++
			}
		}
		stats[cat] = domain.KeywordStats{
			Count:   count,
			Unique:  unique,
			Density: float64(count) / float64(words),
		}
	}
	return stats
}

// KeywordPrediction picks the category with the most unique keyword matches.
// Ties break to the lexicographically earliest category. Confidence is
// top/(top+second) over non-zero unique counts, or 1.0 with no runner-up.
func KeywordPrediction(stats map[string]domain.KeywordStats) (label string, score int, confidence float64) {
	cats := make([]string, 0, len(stats))
	for cat := range stats {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	best, second := 0, 0
	for _, cat := range cats {
		u := stats[cat].Unique
		if u > best {
			second = best
			best = u
			label = cat
		} else if u > second {
			second = u
		}
	}
	if label == "" {
		return domain.LabelUnknown, 0, 0
	}
	confidence = 1.0
	if second > 0 {
		confidence = float64(best) / float64(best+second)
	}
	return label, best, confidence
}
