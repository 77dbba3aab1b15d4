package extract

import (
	"path/filepath"
	"strings"
)

// FileType is the coarse category used to route and archive ingested files.
type FileType string

const (
	TypeText         FileType = "text"
	TypeSpreadsheet  FileType = "spreadsheet"
	TypePresentation FileType = "presentation"
	TypeImage        FileType = "image"
	TypeOther        FileType = "other"
)

var typeByExt = map[string]FileType{
	".txt":  TypeText,
	".md":   TypeText,
	".docx": TypeText,
	".rtf":  TypeText,
	".pdf":  TypeText,
	".xlsx": TypeSpreadsheet,
	".xls":  TypeSpreadsheet,
	".csv":  TypeSpreadsheet,
	".pptx": TypePresentation,
	".ppt":  TypePresentation,
	".jpg":  TypeImage,
	".jpeg": TypeImage,
	".png":  TypeImage,
	".bmp":  TypeImage,
	".gif":  TypeImage,
}

// Classify returns the category of path by extension.
func Classify(path string) FileType {
	if t, ok := typeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return TypeOther
}

// Folder is the archive subfolder for processed files of this type.
func (t FileType) Folder() string {
	switch t {
	case TypeText:
		return "text_docs"
	case TypeSpreadsheet:
		return "Spreadsheets"
	case TypePresentation:
		return "PPT"
	case TypeImage:
		return "Images"
	}
	return ""
}
