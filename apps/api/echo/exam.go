package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/exam"
	"github.com/trezcool/academia/core/user"
)

type examApi struct {
	svc *exam.Service
}

func registerExamAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *exam.Service) {
	api := examApi{svc: svc}

	eg := g.Group("/exams", jwt, actorMiddleware)
	eg.POST("", api.create, roleMiddleware(user.RoleTeacher, user.RoleAdmin))

	// detail endpoints
	dg := eg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/cancel", api.cancel)
	dg.POST("/finish", api.finish)
	dg.POST("/attend", api.attend, roleMiddleware(user.RoleStudent))

	ag := g.Group("/attempts", jwt, actorMiddleware)
	ag.POST("/:id/submit", api.submit)
}

// Handlers

func (api *examApi) create(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if data.CreatorID == "" {
		data.CreatorID = actor.ID
	}
	if data.CreatorEmail == "" && data.CreatorID == actor.ID {
		data.CreatorEmail = actor.Email
	}

	e, err := api.svc.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data exam.UpdateExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}

	e, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) cancel(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "cancelling exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) finish(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Finish(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "finishing exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) attend(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	as, err := api.svc.Attend(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "attending exam")
	}
	return ctx.JSON(http.StatusOK, as)
}

func (api *examApi) submit(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data exam.SubmitAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAttempt")
	}

	as, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, as)
}
