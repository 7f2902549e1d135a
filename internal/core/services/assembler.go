package services

import (
	"context"
	"sort"
	"strings"

	"github.com/custodia-labs/campusrag/internal/core/domain"
	"github.com/custodia-labs/campusrag/internal/logger"
)

// scoredImage is an image under consideration for the answer payload.
type scoredImage struct {
	record *domain.ImageRecord
	score  float64
}

// assemble builds the final answer payload from the selected chunks:
// citations, supporting images and the answer text.
func (s *QueryService) assemble(ctx context.Context, query string, selected []rankedCandidate, queryEntities []string) (*domain.AnswerContext, error) {
	result := &domain.AnswerContext{}
	pageURLs := make(map[string]string)

	for _, rc := range selected {
		url, ok := pageURLs[rc.chunk.PageID]
		if !ok {
			page, err := s.pageStore.GetPage(ctx, rc.chunk.PageID)
			if err != nil {
				logger.Warn("Assembler: page %s missing for chunk %s: %v", rc.chunk.PageID, rc.chunk.ID, err)
				continue
			}
			url = page.URL
			pageURLs[rc.chunk.PageID] = url
		}

		source := domain.SourceRef{URL: url, SectionPath: rc.chunk.SectionPath}
		result.Chunks = append(result.Chunks, domain.ContextChunk{
			Text:   rc.chunk.Text,
			Source: source,
			Score:  rc.candidate.RankKey(),
		})
		result.Sources = append(result.Sources, source)
	}
	if len(result.Chunks) == 0 {
		return nil, domain.ErrInsufficientContext
	}

	result.Images = s.selectImages(ctx, selected, queryEntities)
	result.Answer = s.answer(ctx, query, result.Chunks)
	return result, nil
}

// selectImages gathers each selected chunk's linked images, scores
// them, and picks up to the per-chunk cap. Two images from the same
// dedup group never both appear in one answer.
func (s *QueryService) selectImages(ctx context.Context, selected []rankedCandidate, queryEntities []string) []domain.AnswerImage {
	var answerImages []domain.AnswerImage
	usedGroups := make(map[string]bool)
	maxPerChunk := s.tuning().MaxImagesPerChunk

	for _, rc := range selected {
		candidates := make([]scoredImage, 0, len(rc.chunk.LinkedImages))
		for _, link := range rc.chunk.LinkedImages {
			img, err := s.pageStore.GetImage(ctx, link.ImageID)
			if err != nil {
				logger.Debug("Assembler: image %s missing: %v", link.ImageID, err)
				continue
			}
			candidates = append(candidates, scoredImage{record: img, score: s.imageScore(img, queryEntities)})
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].record.ID < candidates[j].record.ID
		})

		taken := 0
		for _, si := range candidates {
			if taken >= maxPerChunk {
				break
			}
			if usedGroups[si.record.DedupGroup] {
				continue
			}
			usedGroups[si.record.DedupGroup] = true
			answerImages = append(answerImages, domain.AnswerImage{
				URL:            si.record.URL,
				ContextSnippet: si.record.ContextSnippet,
			})
			taken++
		}
	}
	return answerImages
}

// imageScore ranks an image for selection: static quality, plus the
// entity bonus when its text matches a query entity, plus the primary
// bonus.
func (s *QueryService) imageScore(img *domain.ImageRecord, queryEntities []string) float64 {
	tuning := s.tuning()
	score := img.QualityScore
	if imageMatchesEntity(img, queryEntities) {
		score += tuning.ImageEntityBoost
	}
	if img.IsPrimary {
		score += tuning.PrimaryImageBonus
	}
	return score
}

// imageMatchesEntity reports whether the image's alt, caption or
// context snippet contains a query entity.
func imageMatchesEntity(img *domain.ImageRecord, queryEntities []string) bool {
	if len(queryEntities) == 0 {
		return false
	}
	haystacks := []string{img.Alt, img.Caption, img.ContextSnippet}
	for _, text := range haystacks {
		text = strings.ToLower(text)
		if text == "" {
			continue
		}
		for _, entity := range queryEntities {
			if strings.Contains(text, strings.ToLower(entity)) {
				return true
			}
		}
	}
	return false
}

// answer produces the answer text: a constrained generation over the
// assembled context when an answer model is configured, otherwise the
// top context chunk verbatim. Generation failure degrades to the
// extractive fallback rather than failing the query.
func (s *QueryService) answer(ctx context.Context, query string, chunks []domain.ContextChunk) string {
	fallback := chunks[0].Text
	if s.llm == nil {
		return fallback
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		if len(chunk.Source.SectionPath) > 0 {
			sb.WriteString(strings.Join(chunk.Source.SectionPath, " > "))
			sb.WriteString("\n")
		}
		sb.WriteString(chunk.Text)
	}

	generated, err := s.llm.Answer(ctx, query, sb.String())
	if err != nil {
		logger.Warn("Answer generation failed, returning top chunk: %v", err)
		return fallback
	}
	generated = strings.TrimSpace(generated)
	if generated == "" {
		return fallback
	}
	return generated
}
