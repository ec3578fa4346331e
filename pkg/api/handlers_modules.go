package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stormstack/control-plane/pkg/apierrors"
)

const maxModuleUploadBytes = 256 << 20 // 256 MiB

func (s *Server) handleUploadModule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxModuleUploadBytes); err != nil {
		writeError(w, apierrors.Validation("body", "malformed multipart upload: "+err.Error()))
		return
	}

	name := r.FormValue("name")
	version := r.FormValue("version")
	description := r.FormValue("description")
	if name == "" || version == "" {
		writeError(w, apierrors.Validation("name/version", "both are required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierrors.Validation("file", "multipart field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierrors.Internal("failed to read uploaded file", err))
		return
	}

	uploader := r.Header.Get("X-Control-Plane-User")

	meta, err := s.deps.Modules.Upload(r.Context(), name, version, description, header.Filename, uploader, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCreated(w, "/modules/"+name+"/"+version, meta)
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Modules.FindAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListModuleVersions(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	list, err := s.deps.Modules.FindByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	meta, err := s.deps.Modules.FindByNameAndVersion(r.Context(), vars["name"], vars["version"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDownloadModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, version := vars["name"], vars["version"]

	meta, err := s.deps.Modules.FindByNameAndVersion(r.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.deps.Modules.Open(r.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+meta.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.deps.Modules.Delete(r.Context(), vars["name"], vars["version"]); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

type distributeResponse struct {
	NodesPushed int `json:"nodesPushed"`
}

func (s *Server) handleDistributeModule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	count, err := s.deps.Distributor.DistributeToAllNodes(r.Context(), vars["name"], vars["version"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, distributeResponse{NodesPushed: count})
}

func (s *Server) handleDistributeModuleToNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.deps.Distributor.DistributeToNode(r.Context(), vars["name"], vars["version"], vars["nodeId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, distributeResponse{NodesPushed: 1})
}
