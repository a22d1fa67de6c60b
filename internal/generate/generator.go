package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/aicooking/recipegen/internal/search"
	"github.com/aicooking/recipegen/internal/store"
	"github.com/aicooking/recipegen/provider"
)

const defaultNumExamples = 3

// SimilarSearcher finds grounding examples for a recipe query.
type SimilarSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// CompletionProvider is the model surface the generator needs.
type CompletionProvider interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (string, error)
	GenerateImage(ctx context.Context, prompt, size, quality string) (string, error)
}

// RecipeStore persists generated recipes.
type RecipeStore interface {
	CreateRecipe(ctx context.Context, rec store.Recipe) (store.Recipe, error)
	UpdateRecipeImageURL(ctx context.Context, id, imageURL string) error
}

// BlobStorage writes image bytes to durable storage.
type BlobStorage interface {
	Save(name string, data []byte) (string, error)
}

// Options tunes generation behavior.
type Options struct {
	NumExamples    int
	Illustrate     bool
	ImageSize      string
	ImageQuality   string
	PlaceholderURL string
}

// ExampleRef names one grounding recipe and how similar it was.
type ExampleRef struct {
	DocumentTitle   string  `json:"document_title"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Result is the response payload of one generation call.
type Result struct {
	Status             string       `json:"status"`
	Recipe             store.Recipe `json:"recipe"`
	SimilarRecipesUsed []ExampleRef `json:"similar_recipes_used"`
	RecipeQuery        string       `json:"recipe_query"`
}

// Generator creates new recipes grounded on retrieved examples and persists
// them. Generation degrades rather than fails: unparseable model output is
// stored raw, and illustration failures fall back to a placeholder image.
type Generator struct {
	searcher   SimilarSearcher
	provider   CompletionProvider
	store      RecipeStore
	blobs      BlobStorage
	httpClient *http.Client
	opts       Options
	logger     *log.Logger
}

// NewGenerator wires a generator. blobs may be nil when illustration is off.
func NewGenerator(searcher SimilarSearcher, prov CompletionProvider, st RecipeStore, blobs BlobStorage, httpClient *http.Client, opts Options, logger *log.Logger) *Generator {
	if opts.NumExamples <= 0 {
		opts.NumExamples = defaultNumExamples
	}
	if opts.ImageSize == "" {
		opts.ImageSize = "1024x1024"
	}
	if opts.ImageQuality == "" {
		opts.ImageQuality = "standard"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[GENERATE] ", log.LstdFlags)
	}
	return &Generator{
		searcher:   searcher,
		provider:   prov,
		store:      st,
		blobs:      blobs,
		httpClient: httpClient,
		opts:       opts,
		logger:     logger,
	}
}

// Generate creates a recipe for query, grounded on the most similar stored
// chunks, and persists it. The call fails only when retrieval or the
// completion itself fails; persistence and illustration degrade in place.
func (g *Generator) Generate(ctx context.Context, query string) (Result, error) {
	examples, err := g.searcher.Search(ctx, query, g.opts.NumExamples)
	if err != nil {
		return Result{}, fmt.Errorf("generate: find examples: %w", err)
	}

	content, err := g.provider.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt(formatExamples(examples))},
			{Role: "user", Content: userPrompt(query)},
		},
		JSONMode: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate: completion: %w", err)
	}

	recipe := g.saveRecipe(ctx, query, content)
	if g.opts.Illustrate {
		recipe.ImageURL = g.illustrate(ctx, recipe)
	}

	refs := make([]ExampleRef, 0, defaultNumExamples)
	for _, ex := range examples {
		if len(refs) == defaultNumExamples {
			break
		}
		title := ex.DocumentTitle
		if title == "" {
			title = "Unknown"
		}
		refs = append(refs, ExampleRef{DocumentTitle: title, SimilarityScore: ex.VectorSimilarity})
	}

	return Result{
		Status:             "success",
		Recipe:             recipe,
		SimilarRecipesUsed: refs,
		RecipeQuery:        query,
	}, nil
}

// saveRecipe parses model output and persists it. Unparseable output is
// stored verbatim as instructions, and a failed save still leaves a marker
// recipe behind so the run is visible.
func (g *Generator) saveRecipe(ctx context.Context, query, content string) store.Recipe {
	candidate := parseRecipe(query, content)

	saved, err := g.store.CreateRecipe(ctx, candidate)
	if err == nil {
		recipesGenerated.WithLabelValues("generated").Inc()
		return saved
	}

	g.logger.Printf("error: save recipe for %q failed: %v", query, err)
	recipesGenerated.WithLabelValues("save_fallback").Inc()
	marker, merr := g.store.CreateRecipe(ctx, store.Recipe{
		Title:        query,
		Description:  "Generated recipe",
		Instructions: fmt.Sprintf("Recipe generation completed but could not be saved: %v", err),
	})
	if merr != nil {
		g.logger.Printf("error: save marker recipe for %q failed: %v", query, merr)
		return candidate
	}
	return marker
}

// llmRecipe mirrors the JSON schema the model is asked to produce. Nutrition
// and time fields come back as numbers or strings depending on the model's
// mood, so they stay loosely typed.
type llmRecipe struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Ingredients     []string `json:"ingredients"`
	Instructions    []string `json:"instructions"`
	NutritionalInfo struct {
		Calories any `json:"calories"`
		Protein  any `json:"protein"`
		Carbs    any `json:"carbs"`
		Fat      any `json:"fat"`
	} `json:"nutritional_info"`
	PrepTimeMinutes any `json:"prep_time_minutes"`
	CookTimeMinutes any `json:"cook_time_minutes"`
}

// parseRecipe turns raw model output into a persistable recipe. Fenced JSON
// is unwrapped first; anything that still fails to parse becomes the
// instructions body as-is.
func parseRecipe(query, content string) store.Recipe {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(content, "```json", ""), "```", ""))

	var data llmRecipe
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return store.Recipe{
			Title:        query,
			Description:  "Generated recipe",
			Instructions: content,
		}
	}

	title := data.Title
	if title == "" {
		title = query
	}
	return store.Recipe{
		Title:        title,
		Description:  data.Description,
		Instructions: flattenInstructions(data),
	}
}

func flattenInstructions(data llmRecipe) string {
	var ingredients strings.Builder
	ingredients.WriteString("# Ingredients\n")
	for i, ing := range data.Ingredients {
		if i > 0 {
			ingredients.WriteString("\n")
		}
		ingredients.WriteString("- " + ing)
	}

	var steps strings.Builder
	steps.WriteString("# Instructions\n")
	for i, step := range data.Instructions {
		if i > 0 {
			steps.WriteString("\n")
		}
		fmt.Fprintf(&steps, "%d. %s", i+1, step)
	}

	nutrition := fmt.Sprintf("# Nutritional Information\nCalories: %s\nProtein: %s\nCarbs: %s\nFat: %s\n\nPrep Time: %s minutes\nCook Time: %s minutes",
		looseValue(data.NutritionalInfo.Calories),
		looseValue(data.NutritionalInfo.Protein),
		looseValue(data.NutritionalInfo.Carbs),
		looseValue(data.NutritionalInfo.Fat),
		looseValue(data.PrepTimeMinutes),
		looseValue(data.CookTimeMinutes),
	)

	return strings.Join([]string{ingredients.String(), steps.String(), nutrition}, "\n\n")
}

func looseValue(v any) string {
	if v == nil {
		return "N/A"
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// illustrate generates an image for the recipe, copies it into durable
// storage and records the URL. Every failure path returns the placeholder so
// the recipe is never left without an image reference.
func (g *Generator) illustrate(ctx context.Context, recipe store.Recipe) string {
	url, err := g.tryIllustrate(ctx, recipe)
	if err != nil {
		g.logger.Printf("error: illustrate recipe %s failed: %v", recipe.ID, err)
		recipesGenerated.WithLabelValues("image_fallback").Inc()
		url = g.opts.PlaceholderURL
	}
	if recipe.ID != "" && url != "" {
		if uerr := g.store.UpdateRecipeImageURL(ctx, recipe.ID, url); uerr != nil {
			g.logger.Printf("error: record image for recipe %s failed: %v", recipe.ID, uerr)
		}
	}
	return url
}

func (g *Generator) tryIllustrate(ctx context.Context, recipe store.Recipe) (string, error) {
	if g.blobs == nil {
		return "", fmt.Errorf("no blob storage configured")
	}
	sourceURL, err := g.provider.GenerateImage(ctx, imagePrompt(recipe.Title, recipe.Description), g.opts.ImageSize, g.opts.ImageQuality)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	return g.blobs.Save(recipe.ID+".png", data)
}
