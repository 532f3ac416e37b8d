package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"recipebox/internal/logger"
	"recipebox/internal/platform/gemini"
	"recipebox/internal/platform/mealdb"
	"recipebox/internal/recipe"
)

// remoteTimeout bounds every call this handler makes to the remote service.
const remoteTimeout = 15 * time.Second

// MealSource defines the remote recipe service operations the handler uses.
type MealSource interface {
	SearchByName(ctx context.Context, query string) ([]mealdb.RawRecipe, error)
	ListByCategory(ctx context.Context, category string) ([]mealdb.RawRecipe, error)
	ListRandom(ctx context.Context, count int) []mealdb.RawRecipe
	ListCategories(ctx context.Context) ([]recipe.Category, error)
	LookupRecipe(ctx context.Context, id string) (*recipe.Recipe, error)
}

// RecipeDrafter drafts a custom recipe from a photo of a dish.
type RecipeDrafter interface {
	DraftRecipe(ctx context.Context, imageData []byte, format string) (*recipe.Recipe, error)
}

// Handler handles HTTP requests.
type Handler struct {
	Meals       MealSource
	Drafter     RecipeDrafter // nil disables POST /my-recipes/draft
	Stores      *recipe.Provider
	ImagesDir   string
	RandomCount int

	log          *logger.Logger
	resolverOnce sync.Once
	resolver     *recipe.Resolver
}

// NewHandler creates a new Handler.
func NewHandler(meals MealSource, drafter RecipeDrafter, stores *recipe.Provider, imagesDir string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Meals:       meals,
		Drafter:     drafter,
		Stores:      stores,
		ImagesDir:   imagesDir,
		RandomCount: mealdb.DefaultRandomCount,
		log:         log,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/meals/search", h.SearchMeals)
	r.GET("/meals/category/:category", h.MealsByCategory)
	r.GET("/meals/random", h.RandomMeals)
	r.GET("/categories", h.Categories)

	local := r.Group("/", h.RequireStore)
	local.GET("/recipes/:id", h.GetRecipe)
	local.GET("/my-recipes", h.ListRecipes)
	local.POST("/my-recipes", h.CreateRecipe)
	local.GET("/my-recipes/:id", h.GetStoredRecipe)
	local.PUT("/my-recipes/:id", h.UpdateRecipe)
	local.DELETE("/my-recipes/:id", h.DeleteRecipe)
	local.GET("/my-recipes/:id/favorite", h.IsFavorite)
	local.POST("/my-recipes/:id/image", h.UploadImage)
	local.POST("/favorites/:id", h.AddFavorite)
	if h.Drafter != nil {
		local.POST("/my-recipes/draft", h.DraftRecipe)
	}

	r.Static("/images", h.ImagesDir)
}

// storeKey is the gin context key RequireStore sets.
const storeKey = "recipebox.store"

// RequireStore answers 503 until the recipe store has finished loading.
func (h *Handler) RequireStore(c *gin.Context) {
	store, ok := h.Stores.Store()
	if !ok {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "recipes are still loading"})
		return
	}
	c.Set(storeKey, store)
	c.Next()
}

func storeFrom(c *gin.Context) *recipe.Store {
	return c.MustGet(storeKey).(*recipe.Store)
}

func (h *Handler) resolverFor(store *recipe.Store) *recipe.Resolver {
	h.resolverOnce.Do(func() {
		h.resolver = recipe.NewResolver(store, h.Meals)
	})
	return h.resolver
}

// SearchMeals handles GET /meals/search?s=name.
func (h *Handler) SearchMeals(c *gin.Context) {
	query := strings.TrimSpace(c.Query("s"))
	if query == "" {
		c.JSON(http.StatusOK, []recipe.Recipe{})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), remoteTimeout)
	defer cancel()

	meals, err := h.Meals.SearchByName(ctx, query)
	if err != nil {
		h.remoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries(meals))
}

// MealsByCategory handles GET /meals/category/:category.
func (h *Handler) MealsByCategory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), remoteTimeout)
	defer cancel()

	meals, err := h.Meals.ListByCategory(ctx, c.Param("category"))
	if err != nil {
		h.remoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries(meals))
}

// RandomMeals handles GET /meals/random?count=n. It never fails; an
// unreachable remote service yields an empty list.
func (h *Handler) RandomMeals(c *gin.Context) {
	count := h.RandomCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			c.String(http.StatusBadRequest, "count must be a number between 1 and 50")
			return
		}
		count = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), remoteTimeout)
	defer cancel()

	meals := h.Meals.ListRandom(ctx, count)
	out := make([]recipe.Recipe, 0, len(meals))
	for _, m := range meals {
		out = append(out, mealdb.ToRecipe(m))
	}
	c.JSON(http.StatusOK, out)
}

// Categories handles GET /categories.
func (h *Handler) Categories(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), remoteTimeout)
	defer cancel()

	categories, err := h.Meals.ListCategories(ctx)
	if err != nil {
		h.remoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// GetRecipe handles GET /recipes/:id for stored and remote-only recipes alike.
func (h *Handler) GetRecipe(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), remoteTimeout)
	defer cancel()

	r, err := h.resolverFor(storeFrom(c)).Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			c.String(http.StatusNotFound, "Recipe not found")
			return
		}
		h.remoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListRecipes handles GET /my-recipes.
func (h *Handler) ListRecipes(c *gin.Context) {
	c.JSON(http.StatusOK, storeFrom(c).List())
}

// GetStoredRecipe handles GET /my-recipes/:id.
func (h *Handler) GetStoredRecipe(c *gin.Context) {
	r := storeFrom(c).GetByID(c.Param("id"))
	if r == nil {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}
	c.JSON(http.StatusOK, r)
}

// IsFavorite handles GET /my-recipes/:id/favorite.
func (h *Handler) IsFavorite(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"favorite": storeFrom(c).IsFavorite(c.Param("id"))})
}

// ingredientInput is one ingredient line of a create or update request.
type ingredientInput struct {
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// recipeRequest is the body of POST and PUT on /my-recipes.
type recipeRequest struct {
	Name         string             `json:"name" binding:"required"`
	Category     *string            `json:"category"`
	ImageURI     *string            `json:"imageUri"`
	Ingredients  *[]ingredientInput `json:"ingredients"`
	Instructions *string            `json:"instructions"`
}

func (req recipeRequest) ingredients() []recipe.Ingredient {
	out := []recipe.Ingredient{}
	for _, in := range *req.Ingredients {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		out = append(out, recipe.Ingredient{
			ID:      "ing-" + strconv.Itoa(len(out)+1),
			Name:    name,
			Measure: strings.TrimSpace(in.Measure),
		})
	}
	return out
}

// apply copies the fields present in the request onto r. Omitted optional
// fields keep the values r already has.
func (req recipeRequest) apply(r *recipe.Recipe) {
	r.Name = req.Name
	if req.Category != nil {
		r.Category = strings.TrimSpace(*req.Category)
	}
	if req.ImageURI != nil {
		r.ImageURI = req.ImageURI
	}
	if req.Ingredients != nil {
		r.Ingredients = req.ingredients()
	}
	if req.Instructions != nil {
		r.Instructions = req.Instructions
	}
}

// addCustom stores r under a fresh custom id. An id minted by an earlier run
// can still be taken after the clock moved backwards, so taken ids are skipped.
func addCustom(store *recipe.Store, r *recipe.Recipe) {
	for {
		r.ID = recipe.NewCustomID()
		if store.Add(*r) {
			return
		}
	}
}

func bindRecipe(c *gin.Context) (*recipeRequest, bool) {
	var req recipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid recipe: %s", err.Error()))
		return nil, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.String(http.StatusBadRequest, "invalid recipe: name must not be blank")
		return nil, false
	}
	return &req, true
}

// CreateRecipe handles POST /my-recipes, storing a new custom recipe.
func (h *Handler) CreateRecipe(c *gin.Context) {
	req, ok := bindRecipe(c)
	if !ok {
		return
	}

	r := recipe.Recipe{
		Ingredients:  []recipe.Ingredient{},
		Instructions: recipe.String(""),
	}
	req.apply(&r)

	addCustom(storeFrom(c), &r)
	h.log.Info("created custom recipe %s (%s)", r.ID, r.Name)
	c.JSON(http.StatusCreated, r)
}

// UpdateRecipe handles PUT /my-recipes/:id. Omitted optional fields keep
// their stored values.
func (h *Handler) UpdateRecipe(c *gin.Context) {
	id := c.Param("id")
	store := storeFrom(c)

	existing := store.GetByID(id)
	if existing == nil {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}

	req, ok := bindRecipe(c)
	if !ok {
		return
	}

	r := *existing
	req.apply(&r)

	if !store.Update(r) {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRecipe handles DELETE /my-recipes/:id. Removing an unknown id succeeds.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	if storeFrom(c).Remove(c.Param("id")) {
		h.log.Info("removed recipe %s", c.Param("id"))
	}
	c.Status(http.StatusNoContent)
}

// AddFavorite handles POST /favorites/:id. It fetches the full detail of a
// remote recipe and stores it.
func (h *Handler) AddFavorite(c *gin.Context) {
	id := c.Param("id")
	store := storeFrom(c)

	if existing := store.GetByID(id); existing != nil {
		c.JSON(http.StatusOK, existing)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), remoteTimeout)
	defer cancel()

	r, err := h.Meals.LookupRecipe(ctx, id)
	if err != nil {
		h.remoteError(c, err)
		return
	}
	if r == nil {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}

	if !store.Add(*r) {
		// Added concurrently by another request.
		c.JSON(http.StatusOK, store.GetByID(id))
		return
	}
	h.log.Info("favorited recipe %s (%s)", r.ID, r.Name)
	c.JSON(http.StatusCreated, r)
}

// DraftRecipe handles POST /my-recipes/draft: a photo of a dish becomes a
// stored custom recipe drafted by the model.
func (h *Handler) DraftRecipe(c *gin.Context) {
	upload, ok := readImageUpload(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	r, err := h.Drafter.DraftRecipe(ctx, upload.data, upload.format())
	if err != nil {
		if errors.Is(err, gemini.ErrNotFoodImage) {
			c.String(http.StatusBadRequest, "That doesn't look like food. Snap a picture of a dish to draft a recipe.")
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			c.String(http.StatusRequestTimeout, "Gemini API call timed out after 45 seconds")
			return
		}
		c.String(http.StatusBadGateway, fmt.Sprintf("gemini err: %s", err.Error()))
		return
	}

	imageURI, err := saveImage(h.ImagesDir, upload)
	if err != nil {
		h.log.Warn("failed to save drafted recipe image: %v", err)
	} else {
		r.ImageURI = recipe.String(imageURI)
	}

	addCustom(storeFrom(c), r)
	h.log.Info("drafted custom recipe %s (%s)", r.ID, r.Name)
	c.JSON(http.StatusCreated, r)
}

// UploadImage handles POST /my-recipes/:id/image, attaching a resized copy
// of the uploaded image to a stored recipe.
func (h *Handler) UploadImage(c *gin.Context) {
	id := c.Param("id")
	store := storeFrom(c)

	existing := store.GetByID(id)
	if existing == nil {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}

	upload, ok := readImageUpload(c)
	if !ok {
		return
	}

	imageURI, err := saveImage(h.ImagesDir, upload)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("failed to save image: %s", err.Error()))
		return
	}

	existing.ImageURI = recipe.String(imageURI)
	if !store.Update(*existing) {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}
	c.JSON(http.StatusOK, existing)
}

// remoteError maps a remote service failure onto a response.
func (h *Handler) remoteError(c *gin.Context, err error) {
	h.log.Warn("remote request failed: %v", err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.String(http.StatusGatewayTimeout, "Recipe service timed out")
	case errors.Is(err, mealdb.ErrFetchFailed):
		c.String(http.StatusBadGateway, fmt.Sprintf("recipe service error: %s", err.Error()))
	default:
		c.String(http.StatusInternalServerError, fmt.Sprintf("unexpected error: %s", err.Error()))
	}
}

func summaries(meals []mealdb.RawRecipe) []recipe.Recipe {
	out := make([]recipe.Recipe, 0, len(meals))
	for _, m := range meals {
		out = append(out, mealdb.Summary(m))
	}
	return out
}
