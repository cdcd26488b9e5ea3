package domain

// MetadataRecord описывает строку таблицы things. Ключ — ImagePath.
type MetadataRecord struct {
	ImagePath string
	IsBeer    bool
	Style     string // "" если стиль неприменим
}

func NewMetadataRecord(imagePath string, isBeer bool, style string) *MetadataRecord {
	return &MetadataRecord{
		ImagePath: imagePath,
		IsBeer:    isBeer,
		Style:     style,
	}
}
