package suggest

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSuggestions is the most words Suggest will return
const MaxSuggestions = 3

var defaultWords = map[rune][]string{
	'a': {"and", "are", "about"},
	'b': {"but", "because", "by"},
	'c': {"can", "come", "could"},
	'd': {"do", "day", "did"},
	'e': {"even", "ever", "every"},
	'f': {"for", "from", "find"},
	'g': {"get", "give", "good"},
	'h': {"have", "had", "how"},
	'i': {"in", "it", "if"},
	'j': {"just", "job", "join"},
	'k': {"know", "key", "keep"},
	'l': {"like", "look", "little"},
	'm': {"make", "more", "my"},
	'n': {"not", "new", "now"},
	'o': {"of", "on", "one"},
	'p': {"people", "part", "place"},
	'q': {"question", "quick", "quiet"},
	'r': {"right", "really", "read"},
	's': {"so", "see", "some"},
	't': {"the", "to", "that"},
	'u': {"up", "use", "us"},
	'v': {"very", "view", "value"},
	'w': {"with", "what", "when"},
	'x': {"example", "extra", "extreme"},
	'y': {"you", "year", "your"},
	'z': {"zero", "zoom", "zone"},
}

// Lexicon buckets candidate words by their lower-case first letter
type Lexicon struct {
	buckets map[rune][]string
}

// DefaultLexicon returns the built-in word list
func DefaultLexicon() *Lexicon {
	l := &Lexicon{buckets: make(map[rune][]string, len(defaultWords))}
	for r, words := range defaultWords {
		l.buckets[r] = append([]string(nil), words...)
	}
	return l
}

// FromWords builds a lexicon from words, keeping their order within each bucket
func FromWords(words []string) *Lexicon {
	l := &Lexicon{buckets: make(map[rune][]string)}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		r, _ := utf8.DecodeRuneInString(w)
		l.buckets[r] = append(l.buckets[r], w)
	}
	return l
}

// LoadLexicon reads a word list with one word per line. Blank lines and
// lines starting with # are ignored.
func LoadLexicon(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word list: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, strings.Fields(line)[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word list: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word list %s is empty", path)
	}
	return FromWords(words), nil
}

// Bucket returns the words filed under letter
func (l *Lexicon) Bucket(letter rune) []string {
	return l.buckets[unicode.ToLower(letter)]
}

// Size returns the total number of words
func (l *Lexicon) Size() int {
	n := 0
	for _, words := range l.buckets {
		n += len(words)
	}
	return n
}

// LastToken returns the text after the final whitespace character.
// Text ending in whitespace has an empty last token.
func LastToken(text string) string {
	i := strings.LastIndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return text
	}
	_, size := utf8.DecodeRuneInString(text[i:])
	return text[i+size:]
}

// Suggest returns up to MaxSuggestions words completing the last token of text
func (l *Lexicon) Suggest(text string) []string {
	token := strings.ToLower(LastToken(text))
	if token == "" {
		return nil
	}
	first, _ := utf8.DecodeRuneInString(token)
	bucket := l.buckets[first]

	var out []string
	for _, w := range bucket {
		if strings.HasPrefix(w, token) {
			out = append(out, w)
			if len(out) == MaxSuggestions {
				break
			}
		}
	}
	return out
}
