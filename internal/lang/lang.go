// Package lang guesses the language of extracted content so the analysis
// layers can be asked to answer in it.
package lang

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// MinChars is the shortest text a guess is attempted on.
const MinChars = 40

// DefaultLanguages is the detection set. Keeping it small keeps the
// detector's models and memory footprint down.
var DefaultLanguages = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Swedish,
	lingua.Finnish,
	lingua.Polish,
	lingua.Russian,
	lingua.Japanese,
	lingua.Chinese,
}

// Detector wraps a lingua detector built lazily on first use.
type Detector struct {
	Languages []lingua.Language
	// MinRelativeDistance makes the detector refuse close calls; 0 disables it.
	MinRelativeDistance float64

	once     sync.Once
	detector lingua.LanguageDetector
}

// New returns a detector over DefaultLanguages.
func New() *Detector {
	return &Detector{Languages: DefaultLanguages, MinRelativeDistance: 0.1}
}

// Detect returns a BCP 47 tag such as "en" or "" when the text is too short
// or the detector is unsure.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinChars {
		return ""
	}
	d.once.Do(d.build)
	l, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return Normalize(l.IsoCode639_1().String())
}

func (d *Detector) build() {
	langs := d.Languages
	if len(langs) < 2 {
		langs = DefaultLanguages
	}
	b := lingua.NewLanguageDetectorBuilder().FromLanguages(langs...)
	if d.MinRelativeDistance > 0 {
		b = b.WithMinimumRelativeDistance(d.MinRelativeDistance)
	}
	d.detector = b.Build()
}

// Normalize canonicalizes a user or detector supplied language code to its
// base BCP 47 form. Unknown codes yield "".
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
