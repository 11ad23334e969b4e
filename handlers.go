package blogvault

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const maxUploadSize = 10 << 20 // 10MB

type errorResponse struct {
	Error string `json:"error"`
}

// httpError maps the domain error taxonomy onto status codes. Caller input
// errors come back as-is; storage failures surface as 5xx so the caller
// knows the write never happened.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, ErrUnsupportedMediaType):
		return c.JSON(http.StatusUnsupportedMediaType, errorResponse{Error: "only JPG, PNG, GIF and WebP images are supported"})
	case errors.Is(err, ErrInvalidReorder):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: "concurrent update, retry"})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func skipCache(c echo.Context) bool {
	return ShouldSkipCache(c.Request().RequestURI)
}

// --- auth ---

func (a *App) handleLogin(c echo.Context) error {
	if !a.loginLimiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "too many login attempts, try again later"})
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad request"})
	}
	if subtle.ConstantTimeCompare([]byte(body.Password), []byte(a.Config.AdminPassword)) != 1 {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid password"})
	}
	if err := setAuthSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func handleLogout(c echo.Context) error {
	if err := clearAuthSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// --- posts ---

func (a *App) handleListPosts(c echo.Context) error {
	posts, err := a.Posts.List(c.Request().Context(), skipCache(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleCreatePost(c echo.Context) error {
	var post Post
	if err := c.Bind(&post); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad request"})
	}
	created, err := a.Posts.Create(c.Request().Context(), post)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// handleGetPost looks the post up by id first, then by slug, so both
// /api/posts/42 and /api/posts/my-trip work.
func (a *App) handleGetPost(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("id")
	skip := skipCache(c)

	post, err := a.Posts.GetByID(ctx, key, skip)
	if errors.Is(err, ErrNotFound) {
		post, err = a.Posts.GetBySlug(ctx, key, skip)
	}
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleUpdatePost(c echo.Context) error {
	var patch PostPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad request"})
	}
	updated, err := a.Posts.Update(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (a *App) handleDeletePost(c echo.Context) error {
	deleted, err := a.Posts.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, deleted)
}

// --- gallery ---

func (a *App) handleListFolders(c echo.Context) error {
	folders, err := a.Gallery.Folders(c.Request().Context(), skipCache(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"folders": folders})
}

func (a *App) handleCreateFolder(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil || body.Name == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "folder name is required"})
	}
	folder, err := a.Gallery.CreateFolder(c.Request().Context(), body.Name)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, folder)
}

func (a *App) handleDeleteFolder(c echo.Context) error {
	folderID := c.QueryParam("folderId")
	if folderID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "folderId is required"})
	}
	if err := a.Gallery.DeleteFolder(c.Request().Context(), folderID); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (a *App) handleGetFolder(c echo.Context) error {
	folder, err := a.Gallery.Folder(c.Request().Context(), c.Param("folderId"), skipCache(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"folder": folder})
}

func (a *App) handleUploadToFolder(c echo.Context) error {
	raw, fileName, contentType, err := readUpload(c)
	if err != nil {
		return err
	}
	image, err := a.Gallery.UploadImage(c.Request().Context(), c.Param("folderId"), raw, fileName, contentType)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "image": image})
}

// handleUpdateFolder multiplexes the folder actions the UI performs:
// rename, setCover, and reorder.
func (a *App) handleUpdateFolder(c echo.Context) error {
	var body struct {
		Action   string   `json:"action"`
		ImageID  string   `json:"imageId"`
		ImageIDs []string `json:"imageIds"`
		NewName  string   `json:"newName"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad request"})
	}
	ctx := c.Request().Context()
	folderID := c.Param("folderId")

	var err error
	switch body.Action {
	case "rename":
		if body.NewName == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "newName is required"})
		}
		err = a.Gallery.RenameFolder(ctx, folderID, body.NewName)
	case "setCover":
		err = a.Gallery.SetCover(ctx, folderID, body.ImageID)
	case "reorder":
		err = a.Gallery.Reorder(ctx, folderID, body.ImageIDs)
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown action"})
	}
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (a *App) handleDeleteImage(c echo.Context) error {
	imageID := c.QueryParam("imageId")
	if imageID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "imageId is required"})
	}
	if err := a.Gallery.DeleteImage(c.Request().Context(), c.Param("folderId"), imageID); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// handleDownload streams the original object behind a stored image URL with
// an attachment disposition.
func (a *App) handleDownload(c echo.Context) error {
	imageURL := c.QueryParam("url")
	if imageURL == "" || !a.Images.Owns(imageURL) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "url must point into the image store"})
	}
	data, contentType, err := a.Images.Fetch(c.Request().Context(), imageURL)
	if err != nil {
		return httpError(c, err)
	}
	name := objectNameFromURL(imageURL)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, contentType, data)
}

// --- about ---

func (a *App) handleGetAbout(c echo.Context) error {
	about, err := a.About.Read(c.Request().Context(), skipCache(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, about)
}

func (a *App) handleUpdateAbout(c echo.Context) error {
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad request"})
	}
	about, err := a.About.Update(c.Request().Context(), body.Content)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, about)
}

// --- images ---

// handleUpload ingests a standalone image (for embedding in post content)
// and returns both derivative URLs. The thumbnail URL is the one meant for
// the page; the original URL backs progressive loading and downloads.
func (a *App) handleUpload(c echo.Context) error {
	raw, fileName, contentType, err := readUpload(c)
	if err != nil {
		return err
	}
	pair, err := a.Images.Ingest(c.Request().Context(), raw, fileName, contentType)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"url":         pair.ThumbnailURL,
		"originalUrl": pair.OriginalURL,
	})
}

func (a *App) handleListImages(c echo.Context) error {
	urls, err := a.Images.List(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"images": urls})
}

// handleServeImage serves image objects on the local backend, honoring the
// same signed-URL tokens a remote store would verify itself.
func (a *App) handleServeImage(c echo.Context) error {
	name := c.Param("name")
	if !a.signer.Verify(name, c.QueryParams()) {
		return c.JSON(http.StatusForbidden, errorResponse{Error: "invalid or expired signature"})
	}
	data, contentType, err := a.localImages.Get(c.Request().Context(), name)
	if err != nil {
		return httpError(c, err)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

// readUpload pulls the multipart file out of the request, enforcing the
// size cap and the content-type allow-list at the ingestion boundary.
// Validation failures come back as echo.HTTPError for the error handler.
func readUpload(c echo.Context) (raw []byte, fileName, contentType string, err error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, "", "", echo.NewHTTPError(http.StatusBadRequest, "no image file provided")
	}
	if file.Size > maxUploadSize {
		return nil, "", "", echo.NewHTTPError(http.StatusBadRequest, "file too large (max 10MB)")
	}
	contentType = file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return nil, "", "", echo.NewHTTPError(http.StatusUnsupportedMediaType, "only JPG, PNG, GIF and WebP images are supported")
	}
	src, err := file.Open()
	if err != nil {
		return nil, "", "", err
	}
	defer src.Close()
	raw, err = io.ReadAll(src)
	if err != nil {
		return nil, "", "", err
	}
	return raw, file.Filename, contentType, nil
}
