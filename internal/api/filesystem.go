package api

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/replbox/replbox/internal/sandbox"
	"github.com/replbox/replbox/pkg/types"
)

func (s *Server) upload(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "file form field is required",
		})
	}

	// An explicit file_path places the upload relative to the workspace
	// root; otherwise the original filename lands at the top level.
	rel := c.FormValue("file_path")
	if rel == "" {
		rel = fh.Filename
	}
	if rel == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "upload has no file name",
		})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read upload: " + err.Error(),
		})
	}
	defer src.Close()

	abs, err := sandbox.UploadFile(sb.WorkDir(), rel, src)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, types.UploadResponse{FilePath: abs})
}

func (s *Server) listFiles(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	files, err := sandbox.ListFiles(sb.WorkDir())
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, files)
}

func (s *Server) download(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	rel := c.Param("*")
	if rel == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "file path is required",
		})
	}

	abs, err := sandbox.ResolveFile(sb.WorkDir(), rel)
	if err != nil {
		return jsonError(c, err)
	}
	return c.Attachment(abs, filepath.Base(abs))
}

func (s *Server) archive(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/zstd")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%s.tar.zst", sb.ID))
	c.Response().WriteHeader(http.StatusOK)

	if err := sandbox.WriteArchive(sb.WorkDir(), c.Response()); err != nil {
		// Headers are already on the wire, so all we can do is log
		// and cut the connection short.
		s.logger.Warn().Err(err).Str("sandbox_id", sb.ID).Msg("archive stream aborted")
		return err
	}
	return nil
}
