// Package scorer computes the static quality prior of ingested
// images. Scores are assigned once during indexing and never updated
// at query time.
package scorer

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/campusrag/internal/core/domain"
)

// base is the score of an image with no quality signals either way.
const base = 0.5

// filenameLike matches alt text that merely echoes the asset filename
// (e.g. "IMG_4032.JPG", "photo.png"). Such alts carry no descriptive
// signal and earn no bonus.
var filenameLike = regexp.MustCompile(`(?i)^[\w-]+\.(jpe?g|png|gif|webp|svg|bmp)$`)

// Scorer assigns static quality scores from ingest-time signals.
type Scorer struct {
	altBonus          float64
	captionBonus      float64
	peoplePathBonus   float64
	borderlinePenalty float64
}

// New creates a scorer with the given bonus and penalty magnitudes.
func New(s domain.IngestSettings) *Scorer {
	return &Scorer{
		altBonus:          s.AltBonus,
		captionBonus:      s.CaptionBonus,
		peoplePathBonus:   s.PeoplePathBonus,
		borderlinePenalty: s.BorderlinePenalty,
	}
}

// Score computes the [0,1] quality prior for one image on the given
// page. Descriptive alt text, a caption and a person-page path each
// add; a borderline icon-size classification subtracts.
func (s *Scorer) Score(page *domain.Page, img *domain.ImageRecord) float64 {
	score := base
	if descriptiveAlt(img.Alt) {
		score += s.altBonus
	}
	if strings.TrimSpace(img.Caption) != "" {
		score += s.captionBonus
	}
	if domain.IsPeoplePage(page.URL) {
		score += s.peoplePathBonus
	}
	if img.Borderline {
		score -= s.borderlinePenalty
	}
	return clamp01(score)
}

// ScoreAll assigns QualityScore to every image of one page.
func (s *Scorer) ScoreAll(page *domain.Page, images []domain.ImageRecord) {
	for i := range images {
		images[i].QualityScore = s.Score(page, &images[i])
	}
}

// ChunkPrior derives a chunk's quality prior from its linked images:
// the maximum weighted image quality, zero for chunks without images.
// Used only to break rerank ties, so relative order matters more
// than magnitude.
func ChunkPrior(chunk *domain.Chunk, images map[string]*domain.ImageRecord) float64 {
	prior := 0.0
	for _, link := range chunk.LinkedImages {
		img, ok := images[link.ImageID]
		if !ok {
			continue
		}
		if p := img.QualityScore * link.Weight; p > prior {
			prior = p
		}
	}
	return prior
}

func descriptiveAlt(alt string) bool {
	alt = strings.TrimSpace(alt)
	if alt == "" {
		return false
	}
	return !filenameLike.MatchString(alt)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
