package main

import (
	"net/http"

	"github.com/sushihentaime/teamblog/internal/notificationservice"
)

func (app *application) listUnreadHandler(w http.ResponseWriter, r *http.Request) {
	unread, err := app.notificationService.GetUnreadBlogs(r.Context(), app.actorID(r))
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if unread == nil {
		unread = []notificationservice.UnreadBlog{}
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"unread": unread, "count": len(unread)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) unreadCountHandler(w http.ResponseWriter, r *http.Request) {
	n, err := app.notificationService.GetUnreadCount(r.Context(), app.actorID(r))
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"count": n}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// markReadHandler moves the caller's watermark without returning the blog.
func (app *application) markReadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	actorID := app.actorID(r)

	blog, err := app.blogService.GetBlog(r.Context(), actorID, id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.notificationService.MarkBlogAsRead(r.Context(), actorID, blog)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "blog marked as read"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
