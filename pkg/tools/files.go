package tools

import (
	"context"
	"path"

	"github.com/zen-systems/contentflow/pkg/workspace"
)

// MakeDirectoryTool creates a folder under the output root.
type MakeDirectoryTool struct{ ws *workspace.Workspace }

// NewMakeDirectoryTool returns the "make_directory" tool.
func NewMakeDirectoryTool(ws *workspace.Workspace) *MakeDirectoryTool {
	return &MakeDirectoryTool{ws: ws}
}

func (t *MakeDirectoryTool) Name() string { return "make_directory" }

func (t *MakeDirectoryTool) Description() string {
	return "Creates a directory under the output root if it does not exist. Args: path."
}

func (t *MakeDirectoryTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	rel, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	return t.ws.Mkdir(rel)
}

// MakeFileInFolderTool writes one file into a folder, creating the folder.
type MakeFileInFolderTool struct{ ws *workspace.Workspace }

// NewMakeFileInFolderTool returns the "make_file_in_folder" tool.
func NewMakeFileInFolderTool(ws *workspace.Workspace) *MakeFileInFolderTool {
	return &MakeFileInFolderTool{ws: ws}
}

func (t *MakeFileInFolderTool) Name() string { return "make_file_in_folder" }

func (t *MakeFileInFolderTool) Description() string {
	return "Writes content to folder/filename under the output root. Files ending in .json are written as JSON. Args: folder, filename, content."
}

func (t *MakeFileInFolderTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	folder, err := requireString(args, "folder", "folder_path")
	if err != nil {
		return nil, err
	}
	name, err := requireString(args, "filename")
	if err != nil {
		return nil, err
	}
	return t.ws.WriteFile(path.Join(folder, name), args["content"])
}

// FileWriterTool writes one file at a relative path.
type FileWriterTool struct{ ws *workspace.Workspace }

// NewFileWriterTool returns the "file_writer" tool.
func NewFileWriterTool(ws *workspace.Workspace) *FileWriterTool {
	return &FileWriterTool{ws: ws}
}

func (t *FileWriterTool) Name() string { return "file_writer" }

func (t *FileWriterTool) Description() string {
	return "Writes content to a path under the output root, creating parent folders. Args: path, content."
}

func (t *FileWriterTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	rel, err := requireString(args, "path", "filename")
	if err != nil {
		return nil, err
	}
	return t.ws.WriteFile(rel, args["content"])
}
