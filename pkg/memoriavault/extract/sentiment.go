package extract

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

var (
	urlPattern    = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	emailPattern  = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	repeatedPunct = regexp.MustCompile(`([!?.,;:])[!?.,;:]+`)
)

// CleanForSentiment strips content that carries no sentiment (URLs, e-mail
// addresses, phone numbers) and squeezes repeated punctuation.
func CleanForSentiment(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")
	text = phonePattern.ReplaceAllString(text, " ")
	text = repeatedPunct.ReplaceAllString(text, "$1")
	return strings.Join(strings.Fields(text), " ")
}

// RoundScore clamps a score to [-1, 1] and rounds it to two decimals.
func RoundScore(score float64) float64 {
	score = math.Max(-1, math.Min(1, score))
	return math.Round(score*100) / 100
}

// SentimentLabel names a score the way it is shown to people.
func SentimentLabel(score float64) string {
	switch {
	case score >= 0.5:
		return "Very Positive"
	case score >= 0.1:
		return "Positive"
	case score > -0.1:
		return "Neutral"
	case score > -0.5:
		return "Negative"
	default:
		return "Very Negative"
	}
}

// LexiconScorer is an offline valence-lexicon scorer with negation and
// intensifier handling. Scores are normalized as x/sqrt(x²+alpha).
type LexiconScorer struct {
	lexicon map[string]float64
}

const (
	lexiconAlpha     = 15.0
	negationScalar   = -0.74
	intensifierBoost = 0.293
	negationWindow   = 3
)

// NewLexiconScorer returns a scorer using the built-in English lexicon.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{lexicon: defaultLexicon}
}

// ScoreSentiment implements SentimentScorer.
func (l *LexiconScorer) ScoreSentiment(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tokens := memory.Tokenize(CleanForSentiment(text))
	if len(tokens) == 0 {
		return 0, ErrNoSignal
	}

	var sum float64
	for i, tok := range tokens {
		valence, ok := l.lexicon[tok.Term]
		if !ok {
			continue
		}
		if i > 0 {
			if boost, ok := intensifiers[tokens[i-1].Term]; ok {
				valence += math.Copysign(boost, valence)
			}
		}
		for j := max(0, i-negationWindow); j < i; j++ {
			if negations[tokens[j].Term] {
				valence *= negationScalar
				break
			}
		}
		sum += valence
	}

	if sum == 0 {
		return 0, nil
	}
	return RoundScore(sum / math.Sqrt(sum*sum+lexiconAlpha)), nil
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "nor": true, "none": true, "nothing": true,
	"nobody": true, "neither": true, "without": true, "t": true, // "don't" tokenizes to "don", "t"
	"cannot": true, "hardly": true,
}

var intensifiers = map[string]float64{
	"very": intensifierBoost, "really": intensifierBoost, "extremely": intensifierBoost,
	"so": intensifierBoost, "incredibly": intensifierBoost, "truly": intensifierBoost,
	"deeply": intensifierBoost, "absolutely": intensifierBoost, "most": intensifierBoost,
	"slightly": -intensifierBoost, "somewhat": -intensifierBoost, "barely": -intensifierBoost,
}

var defaultLexicon = map[string]float64{
	// positive
	"love": 3.2, "loved": 2.9, "loving": 2.9, "lovely": 2.8, "happy": 2.7, "happiest": 3.2,
	"happiness": 2.6, "joy": 2.8, "joyful": 2.9, "wonderful": 2.7, "beautiful": 2.9,
	"great": 3.1, "good": 1.9, "best": 3.2, "better": 1.9, "nice": 1.8, "fun": 2.3,
	"laugh": 2.6, "laughed": 2.0, "laughing": 2.2, "smile": 1.5, "smiled": 1.5, "smiling": 1.6,
	"celebrate": 2.7, "celebration": 2.5, "wedding": 1.8, "birthday": 1.6, "proud": 2.1,
	"grateful": 2.0, "thankful": 2.4, "blessed": 2.1, "peaceful": 2.2, "warm": 1.2,
	"sweet": 2.0, "dear": 1.6, "cherish": 2.3, "cherished": 2.3, "favorite": 2.0,
	"delight": 2.9, "delighted": 2.7, "excited": 1.4, "amazing": 2.8, "perfect": 2.7,
	"kind": 2.4, "hope": 1.9, "hopeful": 2.3, "friend": 2.2, "friends": 2.1, "together": 1.0,
	"sunny": 1.9, "win": 2.8, "won": 2.7, "success": 2.7, "safe": 1.9, "comfort": 1.5,
	// negative
	"sad": -2.1, "sadness": -1.9, "cry": -2.1, "cried": -1.6, "crying": -2.1, "tears": -0.9,
	"lost": -1.3, "lose": -1.7, "loss": -1.3, "death": -2.9, "died": -2.6, "dead": -3.3,
	"funeral": -1.9, "grief": -2.2, "miss": -0.6, "missed": -1.2, "lonely": -1.8,
	"alone": -1.0, "angry": -2.3, "anger": -2.7, "hate": -2.7, "hated": -3.2, "bad": -2.5,
	"worse": -2.1, "worst": -3.1, "terrible": -2.1, "awful": -2.0, "horrible": -2.5,
	"fear": -2.2, "afraid": -2.0, "scared": -1.9, "sick": -2.3, "ill": -1.8, "pain": -2.3,
	"hurt": -2.4, "broken": -2.0, "war": -2.9, "fire": -1.4, "storm": -0.9, "poor": -2.1,
	"sorry": -0.3, "tired": -1.9, "worried": -1.2, "worry": -1.9, "difficult": -1.5,
	"hard": -0.4, "fight": -1.6, "accident": -2.1, "hospital": -0.8, "cold": -0.5,
}
