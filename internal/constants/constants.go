package constants

const USER_AGENT = "mojangdirectory/1.0 (+https://github.com/Amund211/mojangdirectory)"

const MOJANG_API_BASE_URL = "https://api.mojang.com"
