package converter

// ThingModel представляет запись таблицы things в PostgreSQL.
type ThingModel struct {
	ImagePath string `db:"image_path"`
	IsBeer    bool   `db:"is_beer"`
	Style     string `db:"style"`
}
