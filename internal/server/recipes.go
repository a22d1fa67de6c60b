package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aicooking/recipegen/internal/generate"
	"github.com/aicooking/recipegen/internal/search"
	"github.com/aicooking/recipegen/internal/store"
)

// RecipeSearcher answers free-text searches over the chunk corpus.
type RecipeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// RecipeGenerator creates and persists grounded recipes.
type RecipeGenerator interface {
	Generate(ctx context.Context, query string) (generate.Result, error)
}

// RecipeStore lists persisted recipes.
type RecipeStore interface {
	ListRecipes(ctx context.Context, limit int) ([]store.Recipe, error)
}

type RecipesHandler struct {
	Store        RecipeStore
	Searcher     RecipeSearcher
	Generator    RecipeGenerator
	DefaultLimit int
}

func (h *RecipesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.POST("/generate", h.generate)
}

func (h *RecipesHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recipes, err := h.Store.ListRecipes(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, recipes)
}

func (h *RecipesHandler) search(c echo.Context) error {
	query := c.QueryParam("meal_name")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "meal_name required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = h.DefaultLimit
	}

	results, err := h.Searcher.Search(c.Request().Context(), query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":         query,
		"results_count": len(results),
		"results":       results,
	})
}

func (h *RecipesHandler) generate(c echo.Context) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	res, err := h.Generator.Generate(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
