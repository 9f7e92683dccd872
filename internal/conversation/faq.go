package conversation

import (
	"fmt"
	"regexp"
)

// FAQ answers the handful of recurring informational questions directly from
// clinic configuration, without a model round trip.
type FAQ struct {
	clinic ClinicInfo
}

// NewFAQ builds the canned-answer matcher.
func NewFAQ(clinic ClinicInfo) *FAQ {
	return &FAQ{clinic: clinic}
}

var (
	faqAddressRE   = regexp.MustCompile(`\b(direccion|donde queda|donde esta|donde atiende|como llego|ubicacion)\b`)
	faqHoursRE     = regexp.MustCompile(`\b(horario|horarios|que dias atiende|a que hora)\b`)
	faqPhoneRE     = regexp.MustCompile(`\b(telefono|numero fijo|como los llamo|como me comunico)\b`)
	faqInsuranceRE = regexp.MustCompile(`\b(obra social|obras sociales|prepaga|prepagas|cobertura|acepta|atienden por)\b`)
)

// Answer returns a canned reply and true when the question matches a known
// topic. Questions outside the list go to the assistant.
func (f *FAQ) Answer(text string) (string, bool) {
	norm := normalize(text)
	switch {
	case faqAddressRE.MatchString(norm):
		return fmt.Sprintf("El consultorio queda en %s. 📍", f.clinic.Address), true
	case faqHoursRE.MatchString(norm):
		return fmt.Sprintf("%s atiende %s.", f.clinic.DoctorName, f.clinic.HoursLabel), true
	case faqPhoneRE.MatchString(norm):
		return fmt.Sprintf("Nos podés llamar al %s, o seguir por acá cuando quieras. 📞", f.clinic.Phone), true
	case faqInsuranceRE.MatchString(norm):
		if f.clinic.Insurances == "" {
			return "Decime cuál es tu obra social y te confirmo si la atendemos.", true
		}
		return fmt.Sprintf("Atendemos por %s. Si la tuya no está en la lista, la consulta es particular.", f.clinic.Insurances), true
	}
	return "", false
}
