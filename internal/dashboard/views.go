package dashboard

import (
	"encoding/csv"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ssesports/scrims-bot/internal/registry"
)

type registrationView struct {
	*registry.Registration
	Status string `json:"status"`
}

type lobbyView struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Reserved  int    `json:"reserved"`
	Confirmed int    `json:"confirmed"`
	Capacity  int    `json:"capacity"`
}

func (s *Server) listRegistrations(c echo.Context) error {
	regs := s.regs.All()
	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })

	out := make([]registrationView, 0, len(regs))
	for _, reg := range regs {
		out = append(out, registrationView{Registration: reg, Status: reg.StatusLabel()})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listLobbies(c echo.Context) error {
	out := make([]lobbyView, 0, len(s.lobbies))
	for _, lobby := range s.lobbies {
		out = append(out, lobbyView{
			Key:       lobby.Key,
			Label:     lobby.Label,
			Reserved:  s.regs.ReservedCount(lobby.Key),
			Confirmed: s.regs.ConfirmedCount(lobby.Key),
			Capacity:  s.capacity,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listBlacklist(c echo.Context) error {
	return c.JSON(http.StatusOK, s.blacklist.Entries())
}

// exportCSV streams the live registration set, one row per squad.
func (s *Server) exportCSV(c echo.Context) error {
	regs := s.regs.All()
	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="registrations.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	record := []string{"reg_id", "lobby", "team", "leader_id", "match_type", "entry_fee", "status", "created_at"}
	if err := w.Write(record); err != nil {
		return err
	}
	for _, reg := range regs {
		record = []string{
			strconv.FormatInt(reg.ID, 10),
			reg.LobbyKey,
			reg.TeamName,
			reg.LeaderID,
			reg.MatchType,
			strconv.Itoa(reg.EntryFee),
			reg.StatusLabel(),
			reg.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
