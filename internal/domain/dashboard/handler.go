package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"petsched/internal/domain/pets"
	"petsched/internal/platform/httpjson"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/api/dashboard/stats", statsHandler(svc))
}

type statsResponse struct {
	TotalPets            int             `json:"total_pets"`
	TotalAppointments    int             `json:"total_appointments"`
	UpcomingAppointments int             `json:"upcoming_appointments"`
	RecentPets           []pets.Response `json:"recent_pets"`
}

// statsHandler godoc
// @Summary Estadísticas del dashboard
// @Description Totales, citas de los próximos 7 días y las 5 mascotas más recientes.
// @Tags dashboard
// @Produce json
// @Success 200 {object} httpjson.Envelope
// @Router /dashboard/stats [get]
func statsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Stats(r.Context())
		if err != nil {
			httpjson.Internal(w, r, "Failed to load dashboard data", err)
			return
		}
		httpjson.OK(w, http.StatusOK, statsResponse{
			TotalPets:            st.TotalPets,
			TotalAppointments:    st.TotalAppointments,
			UpcomingAppointments: st.UpcomingAppointments,
			RecentPets:           pets.ToResponses(st.RecentPets),
		})
	}
}
