package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sushihentaime/teamblog/internal/userservice"
)

func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(app.notFoundErrorResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedErrorResponse)

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthCheckHandler)

	// user service
	router.HandlerFunc(http.MethodPost, "/v1/users/register", app.registerUserHandler)
	router.HandlerFunc(http.MethodPut, "/v1/users/activate", app.activateUserHandler)
	router.HandlerFunc(http.MethodPost, "/v1/users/login", app.loginUserHandler)
	router.HandlerFunc(http.MethodPost, "/v1/users/logout", app.requireAuthUser(app.logoutUserHandler))

	// blog service
	router.HandlerFunc(http.MethodGet, "/v1/blogs", app.requireActivatedUser(app.listBlogsHandler))
	router.HandlerFunc(http.MethodPost, "/v1/blogs", app.requirePermission(app.createBlogHandler, userservice.PermissionWriteBlog))
	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id", app.requireActivatedUser(app.getBlogHandler))
	router.HandlerFunc(http.MethodPut, "/v1/blogs/:id", app.requirePermission(app.updateBlogHandler, userservice.PermissionWriteBlog))
	router.HandlerFunc(http.MethodDelete, "/v1/blogs/:id", app.requirePermission(app.deleteBlogHandler, userservice.PermissionWriteBlog))

	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id/participants", app.requireActivatedUser(app.listParticipantsHandler))
	router.HandlerFunc(http.MethodPost, "/v1/blogs/:id/participants", app.requireActivatedUser(app.addParticipantHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/blogs/:id/participants/:userid", app.requireActivatedUser(app.removeParticipantHandler))

	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id/posts", app.requireActivatedUser(app.listPostsHandler))
	router.HandlerFunc(http.MethodPost, "/v1/blogs/:id/posts", app.requirePermission(app.createPostHandler, userservice.PermissionWriteBlog))
	router.HandlerFunc(http.MethodGet, "/v1/posts/:id", app.requireActivatedUser(app.getPostHandler))
	router.HandlerFunc(http.MethodPut, "/v1/posts/:id", app.requirePermission(app.updatePostHandler, userservice.PermissionWriteBlog))
	router.HandlerFunc(http.MethodDelete, "/v1/posts/:id", app.requirePermission(app.deletePostHandler, userservice.PermissionWriteBlog))

	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id/comments", app.requireActivatedUser(app.listCommentsHandler))
	router.HandlerFunc(http.MethodPost, "/v1/blogs/:id/comments", app.requireActivatedUser(app.addCommentHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/comments/:id", app.requireActivatedUser(app.deleteCommentHandler))

	router.HandlerFunc(http.MethodGet, "/v1/blogs/:id/attachments", app.requireActivatedUser(app.listAttachmentsHandler))
	router.HandlerFunc(http.MethodPost, "/v1/attachments", app.requireActivatedUser(app.uploadAttachmentHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/attachments/:id", app.requireActivatedUser(app.deleteAttachmentHandler))

	// notification service
	router.HandlerFunc(http.MethodGet, "/v1/notifications", app.requireActivatedUser(app.listUnreadHandler))
	router.HandlerFunc(http.MethodGet, "/v1/notifications/count", app.requireActivatedUser(app.unreadCountHandler))
	router.HandlerFunc(http.MethodPost, "/v1/blogs/:id/read", app.requireActivatedUser(app.markReadHandler))

	return app.recoverPanic(app.logRequest(app.rateLimit(app.authenticate(router))))
}
