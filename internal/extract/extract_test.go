package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/intake/internal/record"
)

func interviewPipeline(t *testing.T) *Pipeline {
	t.Helper()
	s, err := record.Load(record.KindInterview)
	require.NoError(t, err)
	return NewPipeline(s)
}

func TestEmailAndPhone(t *testing.T) {
	msg := "contact me at a.b-c@example.co.mx or +1 (555) 123-4567"

	email, ok := Email(msg)
	require.True(t, ok)
	assert.Equal(t, "a.b-c@example.co.mx", email)

	phone, ok := Phone(msg)
	require.True(t, ok)
	assert.Equal(t, "+1 (555) 123-4567", phone)

	p := interviewPipeline(t)
	email, ok = p.Email(msg)
	require.True(t, ok)
	assert.Equal(t, "a.b-c@example.co.mx", email)
	phone, ok = p.Phone(msg)
	require.True(t, ok)
	assert.Equal(t, "+1 (555) 123-4567", phone)
}

func TestEmail_PreservesCase(t *testing.T) {
	got, ok := Email("Mi correo es Juan.Perez@Gmail.com gracias")
	require.True(t, ok)
	assert.Equal(t, "Juan.Perez@Gmail.com", got)
}

func TestPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"mi número es 55 1234 5678", "55 1234 5678", true},
		{"5215652301371", "5215652301371", true},
		{"(55) 1234-5678 es mi cel", "(55) 1234-5678", true},
		{"tengo 25 años", "", false},
		{"sin teléfono", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Phone(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYesNo(t *testing.T) {
	yes := []string{"sí", "si", "yes", "claro"}
	no := []string{"no", "not"}

	tests := []struct {
		in     string
		answer bool
		ok     bool
	}{
		{"No, but yes I can", true, true},
		{"Sí, claro", true, true},
		{"SI", true, true},
		{"no puedo", false, true},
		{"Mi nombre es Ana", false, false},
		{"tal vez", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			answer, ok := YesNo(tt.in, yes, no)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.answer, answer)
		})
	}
}

func TestVerbatim(t *testing.T) {
	got, ok := Verbatim("  Licenciatura en contabilidad \n")
	assert.True(t, ok)
	assert.Equal(t, "Licenciatura en contabilidad", got)

	_, ok = Verbatim("   ")
	assert.False(t, ok)
}

func TestInteger(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"3 recámaras", 3, true},
		{"son dos personas", 2, true},
		{"ninguna", 0, true},
		{"Three", 3, true},
		{"muchas", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Integer(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestName(t *testing.T) {
	yes := []string{"yes", "si", "sí"}
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Maria de la Cruz Lopez", "Maria de la Cruz Lopez", true},
		{"Juan Pérez García", "Juan Pérez García", true},
		{"Juan Pérez García.", "Juan Pérez García", true},
		{"Me llamo Ana Sofía Ruiz", "Ana Sofía Ruiz", true},
		{"Mi nombre es Carlos Méndez", "Carlos Méndez", true},
		{"Silvia Torres", "Silvia Torres", true},
		{"Yes I agree", "", false},
		{"Sí Claro Que Sí", "", false},
		{"juan perez", "", false},
		{"Juan", "", false},
		{"Ana Ruiz ana@correo.com", "", false},
		{"Uno Dos Tres Cuatro Cinco Seis Siete", "", false},
		{"Juan trabaja aquí", "", false},
		{"Pedro Luis trabaja en Monterrey", "Pedro Luis", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Name(tt.in, yes)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher(t *testing.T) {
	p := interviewPipeline(t)
	m := NewMatcher(p.Schema())

	assert.Equal(t, []string{"name"}, m.Match("Perfecto. ¿Me compartes tu nombre completo?"))
	assert.Equal(t, []string{"education_level"}, m.Match("¿CUAL GRADO DE ESTUDIOS tienes?"))
	assert.Equal(t, []string{"incorporation_time"}, m.Match("¿En cuanto tiempo podrías incorporarte a laborar?"))
	assert.ElementsMatch(t,
		[]string{"can_travel", "schedule_availability"},
		m.Match("¿Tienes disponibilidad para viajar?"))
	assert.Empty(t, m.Match("Gracias por tu tiempo."))
	assert.Empty(t, m.Match(""))
}

// Each survey question tags only the field it asks for, so no trigger may sit
// inside a longer word ("gas" in "gastas") or another question.
func TestMatcher_SurveyQuestions(t *testing.T) {
	s, err := record.Load(record.KindSurvey)
	require.NoError(t, err)
	m := NewMatcher(s)

	tests := []struct {
		question string
		want     []string
	}{
		{"Para comenzar, ¿me compartes tu nombre completo tal como aparece en tu identificación?", []string{"candidate_name"}},
		{"¿Cuál es tu fecha de nacimiento? (DD/MM/AAAA)", []string{"date_of_birth"}},
		{"¿Cuál es tu número de teléfono con WhatsApp?", []string{"phone_whatsapp"}},
		{"¿Cuál es tu correo electrónico personal?", []string{"email"}},
		{"¿Cuál es tu domicilio completo? Incluye calle, número, colonia, CP, alcaldía o municipio y estado.", []string{"full_address"}},
		{"¿Aceptas compartir tu ubicación en tiempo real?", []string{"share_location"}},
		{"¿La vivienda es propia, rentada o prestada?", []string{"housing_type"}},
		{"¿Con quién vives actualmente?", []string{"lives_with"}},
		{"¿Cuántas personas dependen económicamente de ti?", []string{"dependents_count"}},
		{"¿Cuentas con servicio de agua en tu domicilio?", []string{"has_water"}},
		{"¿Cuentas con luz eléctrica?", []string{"has_electricity"}},
		{"¿Cuentas con internet en casa?", []string{"has_internet"}},
		{"¿Cuentas con gas en tu vivienda?", []string{"has_gas"}},
		{"¿Tienes bienes inmuebles a tu nombre, como casas o terrenos?", []string{"real_estate"}},
		{"¿Tienes vehículos propios?", []string{"vehicles"}},
		{"¿Tienes negocios propios?", []string{"businesses"}},
		{"¿Tienes ahorros formales en algún banco o afore?", []string{"formal_savings"}},
		{"¿Tienes adeudos a tu nombre?", []string{"debts"}},
		{"¿Cuál es tu situación en Buró de Crédito?", []string{"credit_bureau"}},
		{"¿Cuál es tu último grado de estudios?", []string{"education_level"}},
		{"¿Cuentas con comprobante de estudios, como constancia, título o cédula profesional?", []string{"has_education_proof"}},
		{"¿Cuál es el puesto que buscas?", []string{"position_applying"}},
		{"¿A qué organización aplicas?", []string{"organization"}},
		{"¿En qué área, sucursal o división te desempeñarías?", []string{"area_division"}},
		{"¿El motivo de tu solicitud es nuevo ingreso, reingreso o promoción?", []string{"application_reason"}},
		{"¿Cómo te enteraste de la vacante?", []string{"how_found_vacancy"}},
		{"¿Cuál es tu empleo actual?", []string{"current_employment"}},
		{"¿Cuáles han sido tus empleos anteriores?", []string{"previous_employment"}},
		{"¿Cuánto es tu sueldo y bono mensual?", []string{"salary_bonus"}},
		{"¿Recibes apoyo familiar?", []string{"family_support"}},
		{"¿Tienes ingresos por negocios informales?", []string{"informal_business_income"}},
		{"¿En qué gastas tu dinero mensualmente?", []string{"expenses_list"}},
		{"¿Cuál es la cantidad aproximada mensual de cada gasto?", []string{"expenses_amounts"}},
		{"¿Cuánto gastas en despensa al mes?", []string{"groceries"}},
		{"¿Pagas pensión alimenticia?", []string{"alimony"}},
		{"¿Cuánto gastas en comidas fuera de casa?", []string{"food_out"}},
		{"¿Cuánto pagas de renta o hipoteca?", []string{"rent"}},
		{"¿Cuánto pagas por los servicios de la casa?", []string{"utilities"}},
		{"¿Cuánto pagas de internet y cable?", []string{"internet_cable"}},
		{"¿Cuánto gastas en transporte público?", []string{"transportation"}},
		{"¿Usas Uber o taxi? ¿Cuánto gastas al mes?", []string{"uber_taxi"}},
		{"¿Cuánto pagas de colegiaturas?", []string{"school_expenses"}},
		{"¿Pagas algún curso o diplomado?", []string{"courses"}},
		{"¿Cuánto gastas en libros y útiles escolares?", []string{"books_supplies"}},
		{"¿Cuánto gastas en entretenimiento?", []string{"entertainment"}},
		{"¿Cuánto destinas a vacaciones al año?", []string{"vacations"}},
		{"¿Pagas algún seguro de vida o de gastos médicos?", []string{"insurance"}},
		{"¿Cuánto pagas de impuestos o predial?", []string{"taxes"}},
		{"¿Cuánto gastas en ropa y calzado?", []string{"clothing"}},
		{"¿Cuánto gastas en lavandería o tintorería?", []string{"laundry"}},
		{"¿Cuánto pagas de telefonía o plan de celular?", []string{"internet_expenses"}},
		{"¿Tienes alguna condición médica?", []string{"has_medical_condition"}},
		{"¿Tomas medicamentos de forma permanente?", []string{"takes_permanent_medication"}},
		{"Ahora, ¿me compartes los datos de tu familia primaria?", []string{"primary_family_contacts"}},
		{"¿Y de tu familia secundaria?", []string{"secondary_family_contacts"}},
		{"¿Me compartes tus referencias laborales?", []string{"work_references"}},
		{"¿Me das una referencia personal?", []string{"personal_reference"}},
		{"¿Qué referencias nos ayudan a ubicar tu domicilio? ¿Entre qué calles está?", []string{"home_references"}},
		{"¿Hay delincuencia en la zona?", []string{"crime_in_area"}},
		{"¿Los servicios son buenos en tu colonia?", []string{"services_quality"}},
		{"¿La seguridad es buena?", []string{"security_quality"}},
		{"¿Y la vigilancia es buena?", []string{"surveillance_quality"}},
		{"¿Cuántas recámaras tiene tu casa?", []string{"bedrooms"}},
		{"¿Tiene comedor?", []string{"dining_room"}},
		{"¿Cuentas con sala de estar?", []string{"living_room"}},
		{"¿Cuántos baños tiene?", []string{"bathrooms"}},
		{"¿Cuántas plantas o niveles tiene la casa?", []string{"floors"}},
		{"¿Tiene jardín o patio?", []string{"garden"}},
		{"¿Tiene cocina?", []string{"kitchen"}},
		{"¿Cuenta con aire acondicionado?", []string{"air_conditioning"}},
		{"¿Tiene cochera?", []string{"garage"}},
		{"¿Tiene área de lavado?", []string{"laundry_area"}},
		{"¿Tiene alberca?", []string{"pool"}},
		{"¿Cuenta con áreas deportivas?", []string{"sports_areas"}},
		{"¿Tiene estudio u oficina?", []string{"study_office"}},
		{"¿Cuentas con licencia federal?", []string{"has_federal_license"}},
		{"¿Cuál es tu número de licencia federal?", []string{"federal_license_number"}},
		{"¿Cuál es el folio del dictamen médico?", []string{"medical_folio"}},
		{"¿Cuál es la vigencia de la licencia?", []string{"license_validity"}},
		{"¿Cuál es el tipo o categoría de tu licencia?", []string{"license_type"}},
		{"¿Cuentas con licencia estatal?", []string{"has_state_license"}},
		{"¿Me das el número y vigencia de tu licencia estatal?", []string{"state_license_info"}},
		{"¿Ya enviaste las evidencias por WhatsApp, como tu comprobante de domicilio?", []string{"evidence_sent"}},
		{"¡Gracias! Con esto la encuesta está completa.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := m.Match(tt.question)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Empty(t, m.Match("Rentada"))
	assert.Empty(t, m.Match("Gastamos poco en gasolina"))
}

func TestPipelineExtract(t *testing.T) {
	p := interviewPipeline(t)

	got := p.Extract([]string{"can_travel", "schedule_availability"}, "Sí puedo, de lunes a viernes")
	require.Len(t, got, 2)
	assert.Equal(t, "can_travel", got[0].Field)
	assert.True(t, got[0].Value.Equal(record.Bool(true)))
	assert.Equal(t, "schedule_availability", got[1].Field)
	assert.Equal(t, "Sí puedo, de lunes a viernes", got[1].Value.String())

	got = p.Extract([]string{"knows_office"}, "poco, la verdad")
	require.Len(t, got, 1)
	assert.True(t, got[0].Value.Equal(record.Bool(false)))

	assert.Empty(t, p.Extract([]string{"knows_office"}, "mmm"))
	assert.Empty(t, p.Extract(nil, "hola"))
	assert.Empty(t, p.Extract([]string{"unknown_field"}, "hola"))
	assert.Empty(t, p.Extract([]string{"interview_score"}, "100"))
}
