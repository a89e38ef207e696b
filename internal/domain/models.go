// Package domain defines the persistence models for movies, cinemas,
// showtimes, and the genre/language reference tables. These types are
// mapped with GORM and form the core data layer of the aggregation service.
package domain

import "time"

// Geocode precision tiers, from exact address resolution down to a plain
// city-name lookup. A cinema tagged PrecisionFailed has no usable
// coordinates and is excluded from every geo query.
const (
	PrecisionRaw      = "raw"            // full address resolved as-is
	PrecisionClean    = "clean"          // simplified "name + postal code + city"
	PrecisionCityZip  = "city_only"      // postal code + city
	PrecisionCityName = "city_only_name" // city name alone
	PrecisionFailed   = "failed"
)

// Diffusion versions, canonicalized at ingestion (upper-cased, SUBBED folded
// into SUBS). The upstream provider is free-form, so rows may still carry
// values outside this set; filters compare against canonicalized forms.
const (
	DiffusionOriginal = "ORIGINAL"
	DiffusionSubs     = "SUBS"
	DiffusionDubbed   = "DUBBED"
	DiffusionLocal    = "LOCAL"
)

// Movie is the canonical record merged from the provider's metadata and
// showtime listings.
//
// ExternalID is the provider-assigned identifier and the upsert conflict
// key; a record that reaches the store always has one (records without a
// resolvable identifier are dropped upstream). Genres and Languages keep
// the raw comma-joined text the provider sends — the nearby query's coarse
// substring prefilter depends on them — while the normalized tag sets live
// in the m2m join tables and the primary tag in the nullable FK columns.
// Optional columns are pointers so a refetch carrying nulls never erases
// an earlier non-null value (coalescing upsert); IsPremiere and LastUpdate
// always take the incoming value.
type Movie struct {
	ID         uint   `json:"-"           gorm:"primaryKey"`
	ExternalID string `json:"external_id" gorm:"type:varchar(32);not null;uniqueIndex"`
	Slug       string `json:"slug"        gorm:"type:varchar(255);index"`

	Title         string     `json:"title"                    gorm:"type:varchar(255);not null;index"`
	OriginalTitle *string    `json:"original_title,omitempty" gorm:"type:varchar(255)"`
	ReleaseDate   *time.Time `json:"release_date,omitempty"   gorm:"type:date"`
	Genres        *string    `json:"genres,omitempty"         gorm:"type:text"`
	Languages     *string    `json:"languages,omitempty"      gorm:"type:text"`
	Duration      *int       `json:"duration,omitempty"`
	Synopsis      *string    `json:"synopsis,omitempty"   gorm:"type:text"`
	PosterURL     *string    `json:"poster_url,omitempty" gorm:"type:text"`
	Director      *string    `json:"director,omitempty"   gorm:"type:text"`
	IsPremiere    bool       `json:"is_premiere"          gorm:"not null;default:false"`
	LastUpdate    time.Time  `json:"last_update"          gorm:"not null"`

	PrimaryGenreID    *uint `json:"-"`
	PrimaryLanguageID *uint `json:"-"`

	GenreTags    []Genre    `json:"-" gorm:"many2many:movie_genres;"`
	LanguageTags []Language `json:"-" gorm:"many2many:movie_languages;"`
}

// TableName returns the database table name for Movie.
func (Movie) TableName() string { return "movies" }

// Cinema is a venue from the provider's directory, geocoded through the
// cascading address fallback. Unlike Movie, a cinema upsert overwrites
// every field: each sync re-derives the whole record from one
// authoritative geocode attempt.
type Cinema struct {
	ID         uint   `json:"-"           gorm:"primaryKey"`
	ExternalID string `json:"external_id" gorm:"type:varchar(32);not null;uniqueIndex"`
	Slug       string `json:"slug"        gorm:"type:varchar(255);index"`

	Name             string   `json:"name"    gorm:"type:varchar(255);not null;index"`
	Address          string   `json:"address" gorm:"type:text"`
	Latitude         *float64 `json:"latitude,omitempty"  gorm:"index"`
	Longitude        *float64 `json:"longitude,omitempty" gorm:"index"`
	GeocodePrecision string   `json:"geocode_precision"   gorm:"type:varchar(16);not null;default:'failed'"`
}

// TableName returns the database table name for Cinema.
func (Cinema) TableName() string { return "cinemas" }

// Showtime is one screening of a movie at a cinema. The composite unique
// index is the fact identity: re-ingesting the same screening updates only
// Format, ReservationURL, and LastUpdate, never inserting a second row.
type Showtime struct {
	ID       uint `json:"-" gorm:"primaryKey"`
	CinemaID uint `json:"-" gorm:"not null;uniqueIndex:ux_showtime_fact,priority:1;index"`
	MovieID  uint `json:"-" gorm:"not null;uniqueIndex:ux_showtime_fact,priority:2;index"`

	StartDate        time.Time `json:"start_date" gorm:"type:date;not null;uniqueIndex:ux_showtime_fact,priority:3;index"`
	StartTime        string    `json:"start_time" gorm:"type:varchar(5);not null;uniqueIndex:ux_showtime_fact,priority:4"`
	DiffusionVersion string    `json:"diffusion_version" gorm:"type:varchar(16);not null;default:'';uniqueIndex:ux_showtime_fact,priority:5"`

	Format         string    `json:"format,omitempty" gorm:"type:varchar(16)"`
	ReservationURL *string   `json:"reservation_url,omitempty" gorm:"type:text"`
	LastUpdate     time.Time `json:"last_update" gorm:"not null"`

	Cinema Cinema `json:"-" gorm:"foreignKey:CinemaID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Movie  Movie  `json:"-" gorm:"foreignKey:MovieID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Showtime.
func (Showtime) TableName() string { return "showtimes" }

// Genre is a name-keyed reference row created lazily on first encounter.
// The unique index on Name is what makes concurrent get-or-create safe:
// the losing writer hits the constraint and re-reads.
type Genre struct {
	ID   uint   `json:"id"   gorm:"primaryKey"`
	Name string `json:"name" gorm:"type:varchar(128);not null;uniqueIndex"`
}

// TableName returns the database table name for Genre.
func (Genre) TableName() string { return "genres" }

// Language is a name-keyed reference row, same contract as Genre.
type Language struct {
	ID   uint   `json:"id"   gorm:"primaryKey"`
	Name string `json:"name" gorm:"type:varchar(128);not null;uniqueIndex"`
}

// TableName returns the database table name for Language.
func (Language) TableName() string { return "languages" }

// City is derived from cinema addresses during geocoding and feeds the
// suggestion engine's third entity kind. Coordinates come from the cinema
// that introduced the city, which is precise enough for a map jump.
type City struct {
	ID         uint     `json:"id"          gorm:"primaryKey"`
	Name       string   `json:"name"        gorm:"type:varchar(255);not null;uniqueIndex:ux_city_name_zip,priority:1"`
	PostalCode string   `json:"postal_code" gorm:"type:varchar(10);not null;uniqueIndex:ux_city_name_zip,priority:2;index"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// TableName returns the database table name for City.
func (City) TableName() string { return "cities" }
