package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/replbox/replbox/pkg/types"
)

func (s *Server) createSandbox(c echo.Context) error {
	sb, err := s.registry.Create(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("sandbox creation failed")
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, types.CreateResponse{SandboxID: sb.ID})
}

func (s *Server) listSandboxes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) closeSandbox(c echo.Context) error {
	if err := s.registry.Close(c.Param("id")); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, types.CloseResponse{
		Status:  "success",
		Message: "Sandbox closed",
	})
}

func (s *Server) execute(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	var req types.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	rec, err := sb.Execute(c.Request().Context(), req.Code)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) install(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	var req types.InstallRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if req.PackageName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "package_name is required",
		})
	}

	res, err := sb.Install(c.Request().Context(), req.PackageName)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) executions(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	rows, err := sb.Executions()
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}
