package store

import "github.com/saeid-a/CareMarketBack/internal/models"

// DemoSeed returns a small directory for local development.
func DemoSeed() Seed {
	therapist := "Licensed Therapist"
	nutritionist := "Clinical Nutritionist"
	return Seed{
		Providers: []models.ProviderProfile{
			{ID: "prov-therapy-1", UserID: "user-provider-1", FullName: "Dr. Mina Rahimi", Title: &therapist},
			{ID: "prov-nutrition-1", UserID: "user-provider-1", FullName: "Dr. Mina Rahimi", Title: &nutritionist},
			{ID: "prov-therapy-2", UserID: "user-provider-2", FullName: "Dr. Omid Karimi", Title: &therapist},
		},
		Users: []models.UserProfile{
			{ID: "user-client-1", FullName: "Sara Ahmadi"},
			{ID: "user-client-2", FullName: "Reza Moradi"},
			{ID: "user-provider-1", FullName: "Dr. Mina Rahimi"},
			{ID: "user-provider-2", FullName: "Dr. Omid Karimi"},
		},
	}
}
