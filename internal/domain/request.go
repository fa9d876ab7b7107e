package domain

type DrawPathRequest struct {
	Color  string  `json:"color" validate:"required,excludesall={}%"`
	Points []Point `json:"points" validate:"required,min=1"`
}

func (r *DrawPathRequest) Path() Path {
	return Path{Color: r.Color, Points: r.Points}
}

type SetSharedRequest struct {
	Shared *bool `json:"shared" validate:"required"`
}

type MutationResponse struct {
	Accepted bool     `json:"accepted"`
	Board    Snapshot `json:"board"`
}
