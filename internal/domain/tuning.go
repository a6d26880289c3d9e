package domain

// AlertConfig controla qué lotes del ranking se notifican.
type AlertConfig struct {
	Threshold float64 // edge score mínimo (estricto)
	Top       int     // máximo de lotes por ciclo, 0 = todos
}

// Tuning es el único objeto de configuración numérica compartido por
// lifecycle, score y política de puja. Se relee en cada ciclo.
type Tuning struct {
	Lifecycle LifecycleConfig
	Score     ScoreConfig
	Policy    PolicyConfig
	Alert     AlertConfig
}
