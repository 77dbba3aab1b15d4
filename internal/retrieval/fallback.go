package retrieval

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"rag-memory/internal/domain"
	"rag-memory/internal/logging"
)

type entityMatcher struct {
	name string
	re   *regexp.Regexp
}

func newEntityMatcher(name string) *entityMatcher {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &entityMatcher{name: name, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)}
}

// fallback scans text collections for configured entities named in the
// query that no confident hit mentions. A scan stops once every such entity
// has FallbackLimit matches. Matches get the fixed fallback
// score, or nothing at all when that score is below the threshold.
func (e *Engine) fallback(ctx context.Context, q domain.Query, confident []domain.RetrievalResult) []domain.RetrievalResult {
	if len(e.entities) == 0 || e.cfg.FallbackScore < q.Threshold {
		return nil
	}

	var missing []*entityMatcher
	for _, m := range e.entities {
		if !m.re.MatchString(q.Text) {
			continue
		}
		covered := false
		for _, r := range confident {
			if m.re.MatchString(r.Text) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	type key struct{ filename, text string }
	seen := make(map[key]bool, len(confident))
	for _, r := range confident {
		seen[key{r.Filename, r.Text}] = true
	}

	var out []domain.RetrievalResult
	for _, t := range e.cfg.Targets {
		if t.Modality != domain.KindText {
			continue
		}
		found := make([]int, len(missing))
		pending := len(missing)
		err := e.store.Each(ctx, t.Collection, q.Filter, func(h domain.Hit) bool {
			text := strings.TrimSpace(h.Text())
			if text == "" {
				return true
			}
			for i, m := range missing {
				if found[i] >= e.cfg.FallbackLimit || !m.re.MatchString(text) {
					continue
				}
				r := toResult(h, t.Collection, e.cfg.FallbackScore, text)
				k := key{r.Filename, r.Text}
				if seen[k] {
					break
				}
				seen[k] = true
				r.Fallback = true
				out = append(out, r)
				if found[i]++; found[i] == e.cfg.FallbackLimit {
					pending--
				}
				break
			}
			return pending > 0
		})
		if errors.Is(err, domain.ErrCollectionNotFound) {
			continue
		}
		if err != nil {
			logging.From(ctx).Warn("keyword fallback failed", "collection", t.Collection, "error", err)
			continue
		}
		for i, m := range missing {
			logging.From(ctx).Debug("keyword fallback", "entity", m.name, "collection", t.Collection, "matches", found[i])
		}
	}
	return out
}
