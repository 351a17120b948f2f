package solar

// Inverter holds Sandia inverter model parameters.
type Inverter struct {
	Paco float64
	Pdco float64
	Vdco float64
	Pso  float64
	C0   float64
	C1   float64
	C2   float64
	C3   float64
	Pnt  float64
}

// DCInput is the output of one array at its maximum power point.
type DCInput struct {
	Power   float64
	Voltage float64
}

// ACPower combines several MPPT inputs with the Sandia model. Each input's
// efficiency is weighted by its share of the total DC power. Below the
// self-consumption threshold the inverter draws its night tare.
func (inv Inverter) ACPower(inputs ...DCInput) float64 {
	total := 0.0
	for _, in := range inputs {
		total += in.Power
	}
	if total < inv.Pso || total <= 0 {
		return -inv.Pnt
	}

	ac := 0.0
	for _, in := range inputs {
		ac += in.Power / total * inv.efficiencyCurve(in.Voltage, total)
	}
	if ac > inv.Paco {
		ac = inv.Paco
	}
	return ac
}

func (inv Inverter) efficiencyCurve(vdc, pdc float64) float64 {
	a := inv.Pdco * (1 + inv.C1*(vdc-inv.Vdco))
	b := inv.Pso * (1 + inv.C2*(vdc-inv.Vdco))
	c := inv.C0 * (1 + inv.C3*(vdc-inv.Vdco))
	return (inv.Paco/(a-b)-c*(a-b))*(pdc-b) + c*(pdc-b)*(pdc-b)
}
