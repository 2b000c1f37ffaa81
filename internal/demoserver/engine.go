package demoserver

import (
	"math/rand/v2"
	"time"

	"github.com/patrickmn/go-cache"
)

// Verdict is a simulated classification of an uploaded photo.
type Verdict struct {
	Label      string
	Caption    string
	Confidence float64
}

var demoVerdicts = []Verdict{
	{Label: "wall_crack", Caption: "Hairline crack along the wall surface", Confidence: 0.95},
	{Label: "leaking_pipe", Caption: "Moisture staining consistent with a pipe leak", Confidence: 0.88},
	{Label: "peeling_paint", Caption: "Paint film peeling from the substrate", Confidence: 0.76},
	{Label: "broken_tile", Caption: "Cracked floor tile with loose fragments", Confidence: 0.92},
	{Label: "mold_growth", Caption: "Surface mold growth near the corner joint", Confidence: 0.85},
}

// Engine stands in for the image captioning model. Verdicts are cached per
// filename so re-analyzing the same photo stays stable for the whole demo
// session. Predict runs on concurrent request handlers, so the random draw
// uses the concurrency-safe top-level source.
type Engine struct {
	verdicts *cache.Cache
}

// NewEngine creates the demo inference engine.
func NewEngine() *Engine {
	return &Engine{
		verdicts: cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// Predict returns the verdict for a filename, inventing and caching one on
// first sight.
func (e *Engine) Predict(filename string) Verdict {
	if cached, found := e.verdicts.Get(filename); found {
		if verdict, ok := cached.(Verdict); ok {
			return verdict
		}
	}
	verdict := demoVerdicts[rand.IntN(len(demoVerdicts))]
	e.verdicts.Set(filename, verdict, cache.NoExpiration)
	return verdict
}
