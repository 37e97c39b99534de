package server

import (
	"bytes"
	"html/template"
	"strings"

	"streamcode/internal/featureflags"
	"streamcode/internal/models"

	"github.com/gofiber/fiber/v2"
)

// previewPage holds the Open Graph fields rendered for link-preview crawlers.
type previewPage struct {
	SiteName    string
	Title       string
	Heading     string
	Description string
	Image       string
	PageURL     string
	PlayerPath  string
}

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="id">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}} | {{.SiteName}}</title>
  <meta property="og:title" content="{{.Heading}}" />
  <meta property="og:description" content="{{.Description}}" />
  <meta property="og:image" content="{{.Image}}" />
  <meta property="og:url" content="{{.PageURL}}" />
  <meta property="og:type" content="website" />
  <meta property="og:site_name" content="{{.SiteName}}" />
  <meta name="twitter:card" content="summary_large_image" />
  <meta name="twitter:title" content="{{.Heading}}" />
  <meta name="twitter:description" content="{{.Description}}" />
  <meta name="twitter:image" content="{{.Image}}" />
  <meta name="description" content="{{.Description}}" />
  <meta http-equiv="refresh" content="1;url={{.PlayerPath}}">
</head>
<body>
  <h1>{{.Heading}}</h1>
  <p>{{.Description}}</p>
  <p><a href="{{.PlayerPath}}">Open player</a></p>
</body>
</html>
`))

// PreviewStreamCode is the landing page behind share links. Crawlers get an
// Open Graph page; everyone else is redirected to the player.
// @Summary Share-link preview
// @Tags Codes
// @Produce html
// @Param code query string false "Stream code (also accepted as ?=CODE)"
// @Success 200 {string} string "HTML preview for crawlers"
// @Success 302
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /preview [get]
func (s *Server) PreviewStreamCode(c *fiber.Ctx) error {
	code := codeFromQuery(c)
	if code == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Missing stream code"))
	}

	record, ok, err := s.registry.Resolve(c.UserContext(), code)
	if err != nil {
		return s.respondWithRegistryError(c, err)
	}
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Stream not found"))
	}

	multi := record.Descriptor.Kind == models.KindMulti
	player := playerPath(multi, record.Code)

	if !isCrawler(c.Get(fiber.HeaderUserAgent)) || !s.featureFlags.Enabled(featureflags.OGPreview, c.IP()) {
		return c.Redirect(player, fiber.StatusFound)
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, s.buildPreviewPage(record, player)); err != nil {
		return s.respondWithRegistryError(c, err)
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func (s *Server) buildPreviewPage(record *models.StreamCode, player string) previewPage {
	site := s.config.SiteName
	page := previewPage{
		SiteName:   site,
		Image:      s.config.PublicBaseURL + "/placeholder.svg",
		PageURL:    s.config.PublicBaseURL + player,
		PlayerPath: player,
	}

	d := record.Descriptor
	switch {
	case d.Kind == models.KindSingle && d.Single != nil:
		platform := strings.ToUpper(string(d.Single.Platform))
		name := d.Single.DisplayName
		page.Title = name + " - Live di " + platform
		page.Heading = name + " - Live Now!"
		page.Description = strings.TrimSpace(name + " sedang live di " + platform + "! " + d.Single.Title)
		if d.Single.Thumbnail != "" {
			page.Image = d.Single.Thumbnail
		} else if img := d.Single.Extra.String("image"); img != "" {
			page.Image = img
		}
	default:
		title := d.DisplayTitle()
		page.Title = title
		page.Heading = title + " - " + site
		page.Description = "Tonton multiple live streams secara bersamaan!"
	}
	return page
}
