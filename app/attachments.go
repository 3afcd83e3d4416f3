package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sushihentaime/teamblog/internal/blogservice"
	"github.com/sushihentaime/teamblog/internal/storage"
)

const multipartMemory = 8 << 20

func formID(r *http.Request, name string) *string {
	v := r.FormValue(name)
	if v == "" {
		return nil
	}
	return &v
}

// uploadAttachmentHandler checks access, stores the uploaded file, then
// records it against exactly one of blog_id, post_id or comment_id. The
// stored file is removed again when the record is rejected.
func (app *application) uploadAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	maxSize := app.config.Storage.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			app.badRequestErrorResponse(w, r, fmt.Errorf("request body must not be larger than %d bytes", maxBytesError.Limit))
			return
		}
		app.badRequestErrorResponse(w, r, errors.New("request body must be multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		app.failedValidationErrorResponse(w, r, map[string]string{"file": "must be provided"})
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	req := &blogservice.AddAttachmentRequest{
		Filename:         storage.NewKey("attachments", header.Filename),
		OriginalFilename: header.Filename,
		MimeType:         mimeType,
		FileSize:         header.Size,
		BlogID:           formID(r, "blog_id"),
		PostID:           formID(r, "post_id"),
		CommentID:        formID(r, "comment_id"),
	}

	if err := app.blogService.CanAttach(r.Context(), app.actorID(r), req); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.files.Save(r.Context(), req.Filename, file, mimeType); err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	attachment, err := app.blogService.AddAttachment(r.Context(), app.actorID(r), req)
	if err != nil {
		if delErr := app.files.Delete(r.Context(), req.Filename); delErr != nil {
			app.logger.Warn("could not remove rejected upload", slog.String("key", req.Filename), slog.String("error", delErr.Error()))
		}
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusCreated, envelope{"attachment": attachment}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) listAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	blogID, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	attachments, err := app.blogService.ListAttachments(r.Context(), app.actorID(r), blogID)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"attachments": attachments}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *application) deleteAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r, "id")
	if err != nil {
		app.badRequestErrorResponse(w, r, err)
		return
	}

	err = app.blogService.DeleteAttachment(r.Context(), app.actorID(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "attachment deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
