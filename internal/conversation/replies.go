package conversation

import "fmt"

// ClinicInfo carries the consultorio details used in patient-facing copy.
type ClinicInfo struct {
	Name       string
	DoctorName string
	Address    string
	Phone      string
	HoursLabel string
	Insurances string
	InboxEmail string
}

const menuBody = "A) Sacar un turno\n" +
	"B) Reprogramar mi turno\n" +
	"C) Cancelar mi turno\n" +
	"D) Enviar documentación\n\n" +
	"Respondeme con la letra de la opción."

func menuReply(clinic ClinicInfo) string {
	return fmt.Sprintf("¿En qué te puedo ayudar?\n\n%s", menuBody)
}

func welcomeReply(clinic ClinicInfo) string {
	return fmt.Sprintf(
		"¡Hola! Soy la asistente del consultorio de %s. Te voy a pedir algunos datos la primera vez que saques un turno.\n\n%s",
		clinic.DoctorName, menuBody)
}

func ackReply() string {
	return "¡De nada! Cualquier cosa escribime y vemos. 😊"
}

var profilePrompts = map[State]string{
	StateProfileDNI:       "Para empezar necesito tu DNI (solo números, sin puntos). Por ejemplo: 30123456",
	StateProfileName:      "¿Cuál es tu nombre y apellido completos? Por ejemplo: María González",
	StateProfileBirthDate: "¿Cuál es tu fecha de nacimiento? Usá el formato DD/MM/AAAA, por ejemplo 25/08/1987",
	StateProfileAddress:   "¿Cuál es tu domicilio? Calle y número alcanzan, por ejemplo: Av. Rivadavia 1234",
	StateProfileInsurance: "¿Tenés obra social o prepaga? Decime cuál, o \"no tengo\" si venís particular.",
	StateProfileReason:    "¿Cuál es el motivo de la consulta? Contame brevemente, por ejemplo: control anual o me duele la espalda.",
}

var profileRetries = map[State]string{
	StateProfileDNI:       "Ese DNI no me cierra. Mandame solo los números, entre 7 y 10 dígitos. Por ejemplo: 30123456",
	StateProfileName:      "Necesito nombre y apellido, al menos dos palabras. Por ejemplo: María González",
	StateProfileBirthDate: "No pude leer esa fecha. Usá el formato DD/MM/AAAA, por ejemplo 25/08/1987",
	StateProfileAddress:   "Esa dirección me quedó muy corta. Mandame calle y número, por ejemplo: Av. Rivadavia 1234",
	StateProfileInsurance: "No entendí. Decime el nombre de tu obra social o prepaga, o \"no tengo\" si venís particular.",
	StateProfileReason:    "Contame en una frase el motivo de la consulta, por ejemplo: control anual.",
}

func outOfTurnReply(state State) string {
	return "Una cosa a la vez 🙂 " + profilePrompts[state]
}

func chooseDayReply(opts []MenuOption) string {
	return "Tengo turnos disponibles estos días:\n\n" + RenderOptions(opts) +
		"\n\n¿Qué día te queda bien? Respondeme con la letra."
}

func chooseSlotReply(dayLabel string, opts []MenuOption) string {
	return fmt.Sprintf("Para el %s tengo estos horarios:\n\n%s\n\n¿Cuál preferís?", dayLabel, RenderOptions(opts))
}

func noSlotsReply() string {
	return "Por ahora no veo horarios disponibles en la agenda. 😕 Probá de nuevo en unos días o llamá al consultorio."
}

func noAppointmentToRescheduleReply() string {
	return "No encuentro ningún turno tuyo para reprogramar. Si querés sacar uno nuevo, respondé A.\n\n" + menuBody
}

func noAppointmentToCancelReply() string {
	return "No encuentro ningún turno tuyo para cancelar.\n\n" + menuBody
}

func confirmCancelReply(label string) string {
	return fmt.Sprintf("¿Confirmás que querés cancelar tu turno del %s? Respondé sí o no.", label)
}

func cancelledReply(label string) string {
	return fmt.Sprintf("Listo, cancelé tu turno del %s. Cuando quieras sacá uno nuevo escribiendo \"turno\".", label)
}

func cancelAbortedReply() string {
	return "Perfecto, tu turno sigue en pie.\n\n" + menuBody
}

func askYesNoReply() string {
	return "No te entendí. Respondeme sí o no, por favor."
}

func bookedReply(label string) string {
	return fmt.Sprintf("¡Turno confirmado! Te esperamos el %s. Si necesitás cambiarlo, escribime \"reprogramar\".", label)
}

func rescheduledReply(label string) string {
	return fmt.Sprintf("Listo, moví tu turno al %s. ¡Te esperamos!", label)
}

func slotJustTakenReply() string {
	return "Uy, ese horario se acaba de ocupar. 😕 Elegí otro de la lista, por favor."
}

func uploadWaitingReply(clinic ClinicInfo) string {
	return fmt.Sprintf("Perfecto, mandame acá las fotos o PDF de tus estudios y los dejo en tu ficha. También podés enviarlos a %s. Cuando termines escribí \"menu\".", clinic.InboxEmail)
}

func uploadReceivedReply() string {
	return "¡Recibido! Quedó guardado en tu ficha.\n\n" + menuBody
}

func askReasonForSlotReply(label string) string {
	return fmt.Sprintf("Antes de confirmarte el %s, ¿cuál es el motivo de la consulta?", label)
}

func mergedProfileReply(name string) string {
	if name == "" {
		return "Encontré tu ficha anterior con ese DNI, así que seguimos con esos datos. 👌"
	}
	return fmt.Sprintf("Encontré tu ficha anterior a nombre de %s, así que seguimos con esos datos. 👌", name)
}

func clarifyReply() string {
	return "Perdoná, no te entendí. Escribí \"menu\" para ver las opciones."
}
