// Package catalog holds the static marketplace lists: job categories, the
// skills freelancers can list, and the pricing plans.
package catalog

import "strings"

// Category is a top-level job category
type Category struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Skill is a skill a freelancer can list on their profile
type Skill struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Plan is a subscription plan shown on the pricing page
type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	PriceMonthly float64  `json:"priceMonthly"`
	Currency     string   `json:"currency"`
	FeePercent   float64  `json:"feePercent"`
	Features     []string `json:"features"`
	Highlighted  bool     `json:"highlighted"`
}

var categories = []Category{
	{Slug: "web-development", Name: "Web Development", Description: "Websites, web apps and e-commerce stores"},
	{Slug: "mobile-development", Name: "Mobile Development", Description: "iOS, Android and cross-platform apps"},
	{Slug: "design", Name: "Design & Creative", Description: "UI/UX, branding, illustration and video"},
	{Slug: "writing", Name: "Writing & Translation", Description: "Copywriting, content, editing and translation"},
	{Slug: "marketing", Name: "Sales & Marketing", Description: "SEO, social media, advertising and growth"},
	{Slug: "data", Name: "Data Science & Analytics", Description: "Data analysis, machine learning and visualization"},
	{Slug: "admin-support", Name: "Admin Support", Description: "Virtual assistance, data entry and project coordination"},
	{Slug: "consulting", Name: "Business Consulting", Description: "Strategy, finance, legal and HR advice"},
}

var skills = []Skill{
	{Slug: "react", Name: "React", Category: "web-development"},
	{Slug: "nodejs", Name: "Node.js", Category: "web-development"},
	{Slug: "go", Name: "Go", Category: "web-development"},
	{Slug: "wordpress", Name: "WordPress", Category: "web-development"},
	{Slug: "flutter", Name: "Flutter", Category: "mobile-development"},
	{Slug: "swift", Name: "Swift", Category: "mobile-development"},
	{Slug: "kotlin", Name: "Kotlin", Category: "mobile-development"},
	{Slug: "figma", Name: "Figma", Category: "design"},
	{Slug: "logo-design", Name: "Logo Design", Category: "design"},
	{Slug: "video-editing", Name: "Video Editing", Category: "design"},
	{Slug: "copywriting", Name: "Copywriting", Category: "writing"},
	{Slug: "technical-writing", Name: "Technical Writing", Category: "writing"},
	{Slug: "translation", Name: "Translation", Category: "writing"},
	{Slug: "seo", Name: "SEO", Category: "marketing"},
	{Slug: "social-media", Name: "Social Media Marketing", Category: "marketing"},
	{Slug: "python", Name: "Python", Category: "data"},
	{Slug: "sql", Name: "SQL", Category: "data"},
	{Slug: "machine-learning", Name: "Machine Learning", Category: "data"},
	{Slug: "data-entry", Name: "Data Entry", Category: "admin-support"},
	{Slug: "virtual-assistant", Name: "Virtual Assistance", Category: "admin-support"},
	{Slug: "financial-modeling", Name: "Financial Modeling", Category: "consulting"},
	{Slug: "business-plans", Name: "Business Plans", Category: "consulting"},
}

var plans = []Plan{
	{
		ID:           "basic",
		Name:         "Basic",
		PriceMonthly: 0,
		Currency:     "USD",
		FeePercent:   10,
		Features:     []string{"10 bids per month", "Standard profile", "Milestone payments"},
	},
	{
		ID:           "pro",
		Name:         "Pro",
		PriceMonthly: 14.99,
		Currency:     "USD",
		FeePercent:   7,
		Features:     []string{"80 bids per month", "Featured profile", "Milestone payments", "Consultation bookings"},
		Highlighted:  true,
	},
	{
		ID:           "business",
		Name:         "Business",
		PriceMonthly: 49.99,
		Currency:     "USD",
		FeePercent:   5,
		Features:     []string{"Unlimited bids", "Team accounts", "Milestone payments", "Consultation bookings", "Priority support"},
	},
}

// Categories returns all job categories
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Skills returns the skills in category, or every skill when category is empty.
// Category matching ignores case.
func Skills(category string) []Skill {
	category = strings.ToLower(strings.TrimSpace(category))
	out := make([]Skill, 0, len(skills))
	for _, s := range skills {
		if category == "" || s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// HasCategory reports whether slug names a known category
func HasCategory(slug string) bool {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, c := range categories {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

// Plans returns the pricing plans in display order
func Plans() []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		out[i] = p
	}
	return out
}
