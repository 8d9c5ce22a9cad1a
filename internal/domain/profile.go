package domain

type ProfileID string

const (
	ProfileTech       ProfileID = "tech"
	ProfileRealEstate ProfileID = "real-estate"
)

type Prompts struct {
	NewsSearch   string `json:"newsSearch"`
	EditorialGen string `json:"editorialGen"`
	ImageGen     string `json:"imageGen"`
}

type Theme struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

// Profile is the brand configuration passed explicitly to every generation call.
type Profile struct {
	ID               ProfileID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Theme            Theme     `json:"theme"`
	Prompts          Prompts   `json:"prompts"`
	FallbackImageURL string    `json:"fallbackImageUrl"`
}

const defaultFallbackImage = "https://images.unsplash.com/photo-1518770660439-4636190af475"

var builtinProfiles = map[ProfileID]Profile{
	ProfileTech: {
		ID:          ProfileTech,
		Name:        "Teknowguy",
		Description: "Autonomous Publishing Protocol",
		Theme:       Theme{Primary: "red-600", Secondary: "slate-950", Accent: "red-500"},
		Prompts: Prompts{
			NewsSearch:   "Identify the top 5 most critical technology news stories from the last 24 hours.",
			EditorialGen: "Write an EDITORIAL GRADE technical article.",
			ImageGen:     "Professional tech blog editorial image. High-end, clean, futuristic photography style.",
		},
		FallbackImageURL: defaultFallbackImage,
	},
	ProfileRealEstate: {
		ID:          ProfileRealEstate,
		Name:        "MEGS Estate",
		Description: "Luxury Property Intelligence",
		Theme:       Theme{Primary: "blue-600", Secondary: "slate-950", Accent: "yellow-500"},
		Prompts: Prompts{
			NewsSearch:   "Identify top 5 real estate market trends, mortgage rate updates, or luxury housing market news from the last 24 hours.",
			EditorialGen: "Write a LUXURY REAL ESTATE market analysis or property showcase article.",
			ImageGen:     "Luxury real estate editorial image. Modern architecture, golden hour lighting, high-end interior.",
		},
		FallbackImageURL: defaultFallbackImage,
	},
}

// LookupProfile returns a built-in profile by id.
func LookupProfile(id ProfileID) (Profile, bool) {
	p, ok := builtinProfiles[id]
	return p, ok
}

func DefaultProfile() Profile {
	return builtinProfiles[ProfileTech]
}

// Profiles lists the built-in profiles in a stable order.
func Profiles() []Profile {
	return []Profile{builtinProfiles[ProfileTech], builtinProfiles[ProfileRealEstate]}
}

// FallbackImage returns the profile image or the shared default.
func (p Profile) FallbackImage() string {
	if p.FallbackImageURL != "" {
		return p.FallbackImageURL
	}
	return defaultFallbackImage
}
