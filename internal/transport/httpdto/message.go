package httpdto

type SendMessageRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Body      string `json:"body"`
}
