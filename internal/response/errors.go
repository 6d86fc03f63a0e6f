package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrNoActiveLogin      ErrCode = "NO_ACTIVE_LOGIN"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAttemptNotOwned   ErrCode = "ATTEMPT_NOT_OWNED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidIndex   ErrCode = "INVALID_QUESTION_INDEX"
	ErrInvalidOption  ErrCode = "INVALID_OPTION"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrTestNotFound    ErrCode = "TEST_NOT_FOUND"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrTestUnavailable    ErrCode = "TEST_UNAVAILABLE"
	ErrAttemptClosed      ErrCode = "ATTEMPT_CLOSED"
	ErrAlreadySubmitted   ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrNotRetryable       ErrCode = "SUBMISSION_NOT_RETRYABLE"
	ErrSubmissionFailed   ErrCode = "SUBMISSION_FAILED"
	ErrSubmissionRejected ErrCode = "SUBMISSION_REJECTED"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired      ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile   ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge      ErrCode = "FILE_TOO_LARGE"
	ErrMediaNotAccepted  ErrCode = "MEDIA_NOT_ACCEPTED"
	ErrRecognitionFailed ErrCode = "RECOGNITION_FAILED"
	ErrCameraUnavailable ErrCode = "CAMERA_UNAVAILABLE"
	ErrCaptureBusy       ErrCode = "CAPTURE_BUSY"
	ErrCaptureNotActive  ErrCode = "CAPTURE_NOT_ACTIVE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrNoActiveLogin:
		return "Tidak ada login aktif. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAttemptNotOwned:
		return "Pengerjaan ini bukan milik Anda."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidIndex:
		return "Nomor soal tidak valid."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak tersedia untuk soal ini."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrTestNotFound:
		return "Ujian tidak ditemukan."
	case ErrAttemptNotFound:
		return "Pengerjaan ujian tidak ditemukan atau sudah ditutup."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrTestUnavailable:
		return "Ujian ini saat ini tidak dapat dimuat."
	case ErrAttemptClosed:
		return "Jawaban tidak dapat diubah lagi."
	case ErrAlreadySubmitted:
		return "Ujian ini sudah dikumpulkan."
	case ErrNotRetryable:
		return "Pengumpulan hanya dapat diulang setelah gagal."
	case ErrSubmissionFailed:
		return "Gagal mengumpulkan jawaban. Silakan coba lagi."
	case ErrSubmissionRejected:
		return "Jawaban ditolak karena formatnya tidak valid."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "Unggah file diperlukan."
	case ErrUnsupportedFile:
		return "Jenis file tidak didukung."
	case ErrFileTooLarge:
		return "Ukuran file melebihi batas."
	case ErrMediaNotAccepted:
		return "Soal ini tidak menerima jawaban berupa gambar."
	case ErrRecognitionFailed:
		return "Teks tulisan tangan tidak dapat dikenali. Gambar tetap tersimpan."
	case ErrCameraUnavailable:
		return "Kamera tidak tersedia atau akses ditolak."
	case ErrCaptureBusy:
		return "Kamera sedang digunakan."
	case ErrCaptureNotActive:
		return "Kamera belum diaktifkan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
