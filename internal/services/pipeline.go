package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"candidate-screener/internal/errs"
	"candidate-screener/internal/logger"
	"candidate-screener/internal/models"
)

// CV criteria weights. The match rate is the weighted 1-5 average scaled by
// 0.2 onto [0.2, 1].
const (
	weightTechnicalSkills = 0.40
	weightExperience      = 0.25
	weightAchievements    = 0.20
	weightCulturalFit     = 0.15
)

// Project criteria weights; the overall score stays on the 1-5 scale.
const (
	weightCorrectness   = 0.30
	weightCodeQuality   = 0.25
	weightResilience    = 0.20
	weightDocumentation = 0.15
	weightCreativity    = 0.10
)

const (
	defaultEvalTemperature = 0.3
	summaryTemperature     = 0.4
)

type CVEvaluationResult struct {
	DetailedScores models.CVDetailedScores
	MatchRate      float64
	Feedback       string
}

type ProjectEvaluationResult struct {
	DetailedScores models.ProjectDetailedScores
	Score          float64
	Feedback       string
}

// EvaluationPipeline runs the three generation stages for one job, in fixed
// order: CV, then project, then synthesis. Each stage is a pure function of
// its inputs plus its collaborators; no pipeline-local mutable state.
type EvaluationPipeline interface {
	EvaluateCV(ctx context.Context, cvText, jobTitle string) (*CVEvaluationResult, error)
	EvaluateProject(ctx context.Context, projectText string) (*ProjectEvaluationResult, error)
	Synthesize(ctx context.Context, cvResult *CVEvaluationResult, projectResult *ProjectEvaluationResult, jobTitle string) (string, error)
}

type evaluationPipeline struct {
	retrieval       RetrievalEngine
	llm             LLMClient
	extractor       *ResponseExtractor
	prompts         *PromptBuilder
	log             *zap.Logger
	evalTemperature float32
	maxTokens       int
}

// NewEvaluationPipeline uses temperature for the two evaluation stages;
// synthesis keeps its own slightly higher setting for freer prose.
func NewEvaluationPipeline(
	retrieval RetrievalEngine,
	llm LLMClient,
	temperature float32,
	maxTokens int,
	log *zap.Logger,
) EvaluationPipeline {
	if temperature <= 0 {
		temperature = defaultEvalTemperature
	}
	return &evaluationPipeline{
		retrieval:       retrieval,
		llm:             llm,
		extractor:       NewResponseExtractor(),
		prompts:         NewPromptBuilder(),
		log:             log,
		evalTemperature: temperature,
		maxTokens:       maxTokens,
	}
}

// EvaluateCV implements EvaluationPipeline.
func (p *evaluationPipeline) EvaluateCV(ctx context.Context, cvText, jobTitle string) (*CVEvaluationResult, error) {
	ragContext, err := p.retrieval.ForCVEvaluation(ctx, jobTitle)
	if err != nil {
		// Degrade to an ungrounded prompt rather than failing the stage.
		p.log.Warn("cv context retrieval failed, proceeding without grounding", zap.Error(err))
		ragContext = ""
	}

	prompt := p.prompts.BuildCVEvaluationPrompt(cvText, jobTitle, ragContext)

	response, err := p.llm.Generate(ctx, prompt, cvEvaluationSystemPrompt, p.evalTemperature, p.maxTokens)
	if err != nil {
		return nil, err
	}

	p.log.Debug("cv evaluation response received",
		zap.String("response", logger.TruncateForLog(response, 200)),
	)

	return p.parseCVResponse(response)
}

// EvaluateProject implements EvaluationPipeline.
func (p *evaluationPipeline) EvaluateProject(ctx context.Context, projectText string) (*ProjectEvaluationResult, error) {
	ragContext, err := p.retrieval.ForProjectEvaluation(ctx)
	if err != nil {
		p.log.Warn("project context retrieval failed, proceeding without grounding", zap.Error(err))
		ragContext = ""
	}

	prompt := p.prompts.BuildProjectEvaluationPrompt(projectText, ragContext)

	response, err := p.llm.Generate(ctx, prompt, projectEvaluationSystemPrompt, p.evalTemperature, p.maxTokens)
	if err != nil {
		return nil, err
	}

	p.log.Debug("project evaluation response received",
		zap.String("response", logger.TruncateForLog(response, 200)),
	)

	return p.parseProjectResponse(response)
}

// Synthesize implements EvaluationPipeline. Empty output after trimming is
// transient: a regeneration may well produce text.
func (p *evaluationPipeline) Synthesize(ctx context.Context, cvResult *CVEvaluationResult, projectResult *ProjectEvaluationResult, jobTitle string) (string, error) {
	prompt := p.prompts.BuildSummaryPrompt(
		cvResult.MatchRate,
		cvResult.Feedback,
		projectResult.Score,
		projectResult.Feedback,
		jobTitle,
	)

	summary, err := p.llm.Generate(ctx, prompt, summarySystemPrompt, summaryTemperature, p.maxTokens)
	if err != nil {
		return "", err
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", errs.New(errs.KindTransient, "summary generation returned empty text")
	}

	return summary, nil
}

type cvResponsePayload struct {
	TechnicalSkillsMatch *float64 `json:"technical_skills_match"`
	ExperienceLevel      *float64 `json:"experience_level"`
	RelevantAchievements *float64 `json:"relevant_achievements"`
	CulturalFit          *float64 `json:"cultural_fit"`
	MatchRate            *float64 `json:"match_rate"`
	Feedback             string   `json:"feedback"`
}

func (p *evaluationPipeline) parseCVResponse(response string) (*CVEvaluationResult, error) {
	var payload cvResponsePayload
	if err := p.extractor.DecodeInto(response, &payload); err != nil {
		return nil, err
	}

	scores := map[string]*float64{
		"technical_skills_match": payload.TechnicalSkillsMatch,
		"experience_level":       payload.ExperienceLevel,
		"relevant_achievements":  payload.RelevantAchievements,
		"cultural_fit":           payload.CulturalFit,
	}
	for name, score := range scores {
		if err := requireScore(name, score); err != nil {
			return nil, err
		}
	}

	detailed := models.CVDetailedScores{
		TechnicalSkillsMatch: *payload.TechnicalSkillsMatch,
		ExperienceLevel:      *payload.ExperienceLevel,
		RelevantAchievements: *payload.RelevantAchievements,
		CulturalFit:          *payload.CulturalFit,
	}

	// The model also reports a match_rate, but the stored value is always
	// recomputed from the sub-scores so the weighting invariant holds.
	return &CVEvaluationResult{
		DetailedScores: detailed,
		MatchRate:      ComputeCVMatchRate(detailed),
		Feedback:       payload.Feedback,
	}, nil
}

type projectResponsePayload struct {
	Correctness   *float64 `json:"correctness"`
	CodeQuality   *float64 `json:"code_quality"`
	Resilience    *float64 `json:"resilience"`
	Documentation *float64 `json:"documentation"`
	Creativity    *float64 `json:"creativity"`
	OverallScore  *float64 `json:"overall_score"`
	Feedback      string   `json:"feedback"`
}

func (p *evaluationPipeline) parseProjectResponse(response string) (*ProjectEvaluationResult, error) {
	var payload projectResponsePayload
	if err := p.extractor.DecodeInto(response, &payload); err != nil {
		return nil, err
	}

	scores := map[string]*float64{
		"correctness":   payload.Correctness,
		"code_quality":  payload.CodeQuality,
		"resilience":    payload.Resilience,
		"documentation": payload.Documentation,
		"creativity":    payload.Creativity,
	}
	for name, score := range scores {
		if err := requireScore(name, score); err != nil {
			return nil, err
		}
	}

	detailed := models.ProjectDetailedScores{
		Correctness:   *payload.Correctness,
		CodeQuality:   *payload.CodeQuality,
		Resilience:    *payload.Resilience,
		Documentation: *payload.Documentation,
		Creativity:    *payload.Creativity,
	}

	return &ProjectEvaluationResult{
		DetailedScores: detailed,
		Score:          ComputeProjectScore(detailed),
		Feedback:       payload.Feedback,
	}, nil
}

func requireScore(name string, score *float64) error {
	if score == nil {
		return errs.Newf(errs.KindParse, "missing required score field %q", name)
	}
	if *score < 1 || *score > 5 {
		return errs.Newf(errs.KindParse, "score field %q out of range: %v", name, *score)
	}
	return nil
}

// ComputeCVMatchRate collapses the four weighted sub-scores onto [0, 1].
func ComputeCVMatchRate(s models.CVDetailedScores) float64 {
	weighted := s.TechnicalSkillsMatch*weightTechnicalSkills +
		s.ExperienceLevel*weightExperience +
		s.RelevantAchievements*weightAchievements +
		s.CulturalFit*weightCulturalFit
	return weighted * 0.2
}

// ComputeProjectScore collapses the five weighted sub-scores onto the 1-5
// scale.
func ComputeProjectScore(s models.ProjectDetailedScores) float64 {
	return s.Correctness*weightCorrectness +
		s.CodeQuality*weightCodeQuality +
		s.Resilience*weightResilience +
		s.Documentation*weightDocumentation +
		s.Creativity*weightCreativity
}
